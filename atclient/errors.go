package atclient

import (
	"errors"
	"strconv"

	"i4.energy/across/ubloxd/at"
)

var (
	// ErrNoDialer is returned when a Client is constructed without a
	// Dialer.
	//
	// This indicates a configuration error. A Dialer is required in
	// order to establish a connection to the module.
	ErrNoDialer = errors.New("atclient: no dialer configured")

	// ErrClosed is returned when an operation is attempted on a Client
	// that has been closed, and by Close itself when called twice.
	ErrClosed = errors.New("atclient: client closed")

	// ErrInvalidParameter is returned for bad call arguments, detected
	// synchronously.
	ErrInvalidParameter = errors.New("atclient: invalid parameter")

	// ErrTimeout is returned when no matching token, prompt or lock
	// became available within the caller's deadline. The client remains
	// fully usable afterwards; retrying is the caller's decision.
	ErrTimeout = errors.New("atclient: timeout")

	// ErrNotLocked is returned by operations that require the instance
	// lock when the supplied context does not carry ownership of it.
	ErrNotLocked = errors.New("atclient: instance not locked by caller")

	// ErrPrefixInUse is returned by HandleURC when a binding with the
	// same prefix is already registered.
	ErrPrefixInUse = errors.New("atclient: URC prefix already bound")

	// ErrNoResponseLine is returned by ResponseStart and ResponseLine
	// when the final result code arrived before the awaited information
	// response line.
	ErrNoResponseLine = errors.New("atclient: expected response line not received")
)

// DeviceError reports that the module answered a command with a final
// error result code. It is recoverable: the client stays usable and
// the most recent CME/CMS cause code stays queryable through
// LastDeviceError.
type DeviceError struct {
	// Kind is meaningful only when Code >= 0, i.e. when the module
	// reported a numeric +CME/+CMS cause.
	Kind at.ErrorKind
	// Code is the numeric cause, or -1 when the final result carried
	// none (plain ERROR, ABORTED, verbose CMEE=2 text).
	Code int
	// Line is the final result code verbatim as received.
	Line string
}

func (e *DeviceError) Error() string {
	if e.Code >= 0 {
		return "atclient: device error " + e.Kind.String() + " " + strconv.Itoa(e.Code)
	}
	return "atclient: device error: " + e.Line
}

// deviceError builds the DeviceError for a final error result line.
func deviceError(line string) *DeviceError {
	if kind, code, ok := at.ParseDeviceError(line); ok {
		return &DeviceError{Kind: kind, Code: code, Line: line}
	}
	return &DeviceError{Code: -1, Line: line}
}
