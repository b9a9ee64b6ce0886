package atclient

import "time"

// KeepGoing is the cooperative cancellation predicate for long-running
// higher-level operations (network registration, socket retries). The
// operation polls ShouldContinue between iterations and stops cleanly
// when it returns false; the client itself never imposes a wall-clock
// limit on such loops.
type KeepGoing interface {
	ShouldContinue() bool
}

// KeepGoingFunc adapts a plain function to KeepGoing.
type KeepGoingFunc func() bool

func (f KeepGoingFunc) ShouldContinue() bool { return f() }

type keepGoingUntil time.Time

func (d keepGoingUntil) ShouldContinue() bool {
	return time.Now().Before(time.Time(d))
}

// KeepGoingUntil keeps going until the given wall-clock instant.
func KeepGoingUntil(t time.Time) KeepGoing { return keepGoingUntil(t) }

// KeepGoingFor keeps going for the given duration from now.
func KeepGoingFor(d time.Duration) KeepGoing {
	return KeepGoingUntil(time.Now().Add(d))
}
