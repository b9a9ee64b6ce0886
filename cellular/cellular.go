// Package cellular implements common operations against a u-blox
// cellular module on top of the AT client: identity, signal quality,
// and network registration. Retry and give-up policy lives here, not
// in the client: operations poll a caller-supplied KeepGoing predicate
// and the client's errors pass through unretried.
package cellular

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"i4.energy/across/ubloxd/at"
	"i4.energy/across/ubloxd/atclient"
)

// ErrAborted is returned when a long-running operation stopped because
// the caller's KeepGoing predicate said to.
var ErrAborted = errors.New("cellular: operation aborted by caller")

// RegStatus is the network registration state from +CREG.
type RegStatus int

const (
	NotRegistered      RegStatus = 0
	RegisteredHome     RegStatus = 1
	Searching          RegStatus = 2
	RegistrationDenied RegStatus = 3
	RegUnknown         RegStatus = 4
	RegisteredRoaming  RegStatus = 5
)

func (s RegStatus) String() string {
	switch s {
	case NotRegistered:
		return "not registered"
	case RegisteredHome:
		return "registered (home)"
	case Searching:
		return "searching"
	case RegistrationDenied:
		return "denied"
	case RegisteredRoaming:
		return "registered (roaming)"
	default:
		return "unknown"
	}
}

// Registered reports whether the module is usable on a network.
func (s RegStatus) Registered() bool {
	return s == RegisteredHome || s == RegisteredRoaming
}

// Device wraps an AT client with cellular module operations.
type Device struct {
	client *atclient.Client

	// While a "+CREG:" URC binding is active every +CREG line, solicited
	// or not, is routed to the handler. statCh carries a captured
	// solicited answer back to the query that asked for it.
	mu       sync.Mutex
	onChange func(RegStatus)
	statCh   chan RegStatus
}

func New(client *atclient.Client) *Device {
	return &Device{client: client}
}

// Client exposes the underlying AT client for operations this package
// does not cover.
func (d *Device) Client() *atclient.Client {
	return d.client
}

// Init runs the usual bring-up sequence: sanity check, echo off,
// numeric CME error reporting.
func (d *Device) Init(ctx context.Context) error {
	if err := d.client.Command(ctx, at.CmdAt); err != nil {
		return fmt.Errorf("module not responding: %w", err)
	}
	if err := d.client.Command(ctx, at.CmdEchoOff); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}
	if err := d.client.Command(ctx, at.CmdVerboseErrors); err != nil {
		return fmt.Errorf("could not enable CME error codes: %w", err)
	}
	return nil
}

// SignalQuality queries +CSQ and returns the RSSI and bit error rate
// indices (99 means unknown).
func (d *Device) SignalQuality(ctx context.Context) (rssi, ber int, err error) {
	lctx, err := d.client.Lock(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer d.client.Unlock(lctx)

	if err := d.client.SendCommand(lctx, "AT+CSQ"); err != nil {
		return 0, 0, err
	}
	if err := d.client.ResponseStart(lctx, "+CSQ:"); err != nil {
		return 0, 0, err
	}
	if rssi, err = d.client.ReadInt(); err != nil {
		return 0, 0, err
	}
	if ber, err = d.client.ReadInt(); err != nil {
		return 0, 0, err
	}
	if err := d.client.ResponseStop(lctx); err != nil {
		return 0, 0, err
	}
	return rssi, ber, nil
}

// IMEI returns the module's serial number.
func (d *Device) IMEI(ctx context.Context) (string, error) {
	lctx, err := d.client.Lock(ctx)
	if err != nil {
		return "", err
	}
	defer d.client.Unlock(lctx)

	if err := d.client.SendCommand(lctx, "AT+CGSN"); err != nil {
		return "", err
	}
	// The response is a bare digit line with no information prefix.
	if err := d.client.ResponseStart(lctx, ""); err != nil {
		return "", err
	}
	imei, err := d.client.ReadString()
	if err != nil {
		return "", err
	}
	if err := d.client.ResponseStop(lctx); err != nil {
		return "", err
	}
	return imei, nil
}

// Operator returns the currently selected network operator name, empty
// when none is selected.
func (d *Device) Operator(ctx context.Context) (string, error) {
	lctx, err := d.client.Lock(ctx)
	if err != nil {
		return "", err
	}
	defer d.client.Unlock(lctx)

	if err := d.client.SendCommand(lctx, "AT+COPS?"); err != nil {
		return "", err
	}
	if err := d.client.ResponseStart(lctx, "+COPS:"); err != nil {
		return "", err
	}
	// +COPS: <mode>[,<format>,<oper>[,<AcT>]]
	if _, err := d.client.ReadInt(); err != nil {
		return "", err
	}
	var name string
	if _, err := d.client.ReadInt(); err == nil {
		name, _ = d.client.ReadString()
	}
	if err := d.client.ResponseStop(lctx); err != nil {
		return "", err
	}
	return name, nil
}

// RegistrationStatus queries +CREG. With a registration URC binding
// active the response line is routed to the handler rather than to this
// exchange, so the answer is taken from the handler's capture instead.
func (d *Device) RegistrationStatus(ctx context.Context) (RegStatus, error) {
	d.mu.Lock()
	bound := d.onChange != nil
	d.mu.Unlock()
	if bound {
		return d.registrationFromHandler(ctx)
	}

	lctx, err := d.client.Lock(ctx)
	if err != nil {
		return RegUnknown, err
	}
	defer d.client.Unlock(lctx)

	if err := d.client.SendCommand(lctx, "AT+CREG?"); err != nil {
		return RegUnknown, err
	}
	if err := d.client.ResponseStart(lctx, "+CREG:"); err != nil {
		return RegUnknown, err
	}
	// +CREG: <n>,<stat>
	if _, err := d.client.ReadInt(); err != nil {
		return RegUnknown, err
	}
	stat, err := d.client.ReadInt()
	if err != nil {
		return RegUnknown, err
	}
	if err := d.client.ResponseStop(lctx); err != nil {
		return RegUnknown, err
	}
	return RegStatus(stat), nil
}

// WaitRegistered polls the registration status until the module is on
// a network, the context ends, or keepGoing says stop. The client's
// per-command timeout still applies to each poll; the overall deadline
// is entirely the caller's, through keepGoing.
func (d *Device) WaitRegistered(ctx context.Context, keepGoing atclient.KeepGoing, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	for {
		if !keepGoing.ShouldContinue() {
			return ErrAborted
		}

		status, err := d.RegistrationStatus(ctx)
		if err == nil && status.Registered() {
			return nil
		}
		if errors.Is(err, atclient.ErrClosed) {
			return err
		}
		// Timeouts and device errors are retried until keepGoing gives
		// up; the last device error stays queryable on the client.

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// registrationFromHandler issues AT+CREG? and waits for the URC handler
// to capture the solicited answer.
func (d *Device) registrationFromHandler(ctx context.Context) (RegStatus, error) {
	ch := make(chan RegStatus, 1)
	d.mu.Lock()
	d.statCh = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		if d.statCh == ch {
			d.statCh = nil
		}
		d.mu.Unlock()
	}()

	if err := d.client.Command(ctx, "AT+CREG?"); err != nil {
		return RegUnknown, err
	}
	// The final OK can race ahead of the handler dispatch.
	select {
	case stat := <-ch:
		return stat, nil
	case <-ctx.Done():
		return RegUnknown, ctx.Err()
	case <-time.After(2 * time.Second):
		return RegUnknown, atclient.ErrTimeout
	}
}

// handleCREG receives every +CREG line while the URC binding is active.
// The unsolicited form carries a single parameter, "+CREG: <stat>"; the
// solicited response carries two, "+CREG: <n>,<stat>", and answers a
// pending query instead of signaling a status change.
func (d *Device) handleCREG(line string) {
	p := at.NewParams(line)
	first, err := p.NextInt()
	if err != nil {
		return
	}
	stat, solicited := first, false
	if second, err := p.NextInt(); err == nil {
		stat, solicited = second, true
	}

	d.mu.Lock()
	fn := d.onChange
	ch := d.statCh
	d.mu.Unlock()

	if solicited {
		if ch != nil {
			select {
			case ch <- RegStatus(stat):
			default:
			}
		}
		return
	}
	if fn != nil {
		fn(RegStatus(stat))
	}
}

// OnRegistrationChange enables +CREG URCs and delivers each status
// change to fn. Call with the module registered for URC mode 1.
func (d *Device) OnRegistrationChange(ctx context.Context, fn func(RegStatus)) error {
	d.mu.Lock()
	if d.onChange != nil {
		d.mu.Unlock()
		return atclient.ErrPrefixInUse
	}
	d.onChange = fn
	d.mu.Unlock()

	unbind := func() {
		d.client.RemoveURC("+CREG:")
		d.mu.Lock()
		d.onChange = nil
		d.mu.Unlock()
	}

	if err := d.client.HandleURC("+CREG:", d.handleCREG); err != nil {
		d.mu.Lock()
		d.onChange = nil
		d.mu.Unlock()
		return err
	}
	if err := d.client.Command(ctx, "AT+CREG=1"); err != nil {
		unbind()
		return err
	}
	return nil
}
