package port

import (
	"context"
	"errors"
	"fmt"

	"go.bug.st/serial"
)

// SerialDialer opens a u-blox module over a serial port using
// go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0" or "COM3".
	PortName string
	// BaudRate defaults to 115200, the usual rate for u-blox cellular
	// modules.
	BaudRate int
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("port: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("port: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baud := d.BaudRate
	if baud == 0 {
		baud = 115200
	}

	p, err := serial.Open(d.PortName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("port: open %s: %w", d.PortName, err)
	}
	return p, nil
}
