// Package port provides the byte stream transports that carry AT
// command and UBX protocol traffic to u-blox modules: serial ports and
// the I2C (DDC) interface, plus the test doubles the rest of the
// library is tested against.
package port

import (
	"context"
	"io"
)

//go:generate go tool mockgen -source=port.go -destination=mock_port.go -package=port

// Transport represents an established, bidirectional byte stream to a
// u-blox module.
//
// A Transport is assumed to be already connected and ready for use. It
// provides the low-level I/O primitives required to send commands and
// receive responses. Typical implementations include serial ports, the
// DDC (I2C) interface of a GNSS receiver, TCP connections to
// emulators, or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a u-blox module.
//
// Dialer abstracts how the connection is created (serial port, I2C
// bus, test double) and is intended to be used during client
// construction only. Once a Transport is obtained, the Dialer is no
// longer needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may perform
	// blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport
	// cannot be established.
	Dial(ctx context.Context) (Transport, error)
}
