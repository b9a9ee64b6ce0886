package port

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// u-blox DDC register map. Registers 0xFD and 0xFE hold the big-endian
// count of bytes waiting in the message stream; register 0xFF streams
// the bytes out.
const (
	ddcRegCount  = 0xFD
	ddcRegStream = 0xFF

	defaultI2CAddr     = 0x42 // u-blox GNSS receiver default
	defaultDDCPollRate = 10 * time.Millisecond
)

// I2CDialer opens a u-blox GNSS receiver over the DDC (I2C compliant)
// interface using periph.io.
type I2CDialer struct {
	// Bus is the bus name as understood by periph's i2creg, e.g.
	// "/dev/i2c-1" or "1". Empty selects the first available bus.
	Bus string
	// Addr is the 7-bit device address. Zero means the u-blox default
	// of 0x42.
	Addr uint16
	// PollInterval is how often Read polls the receiver when no bytes
	// are waiting. Zero means 10ms.
	PollInterval time.Duration
}

func (d I2CDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("port: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("port: initialize host drivers: %w", err)
	}

	bus, err := i2creg.Open(d.Bus)
	if err != nil {
		return nil, fmt.Errorf("port: open i2c bus %q: %w", d.Bus, err)
	}

	addr := d.Addr
	if addr == 0 {
		addr = defaultI2CAddr
	}
	poll := d.PollInterval
	if poll == 0 {
		poll = defaultDDCPollRate
	}

	return &ddcTransport{
		bus:    bus,
		dev:    i2c.Dev{Bus: bus, Addr: addr},
		poll:   poll,
		closed: make(chan struct{}),
	}, nil
}

// ddcTransport adapts the register-windowed DDC interface to a plain
// byte stream: Read polls the available-byte count and drains the
// stream register, Write pushes bytes straight at the device.
type ddcTransport struct {
	bus  i2c.BusCloser
	dev  i2c.Dev
	poll time.Duration

	mu        sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func (t *ddcTransport) available() (int, error) {
	var count [2]byte
	t.mu.Lock()
	err := t.dev.Tx([]byte{ddcRegCount}, count[:])
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return int(count[0])<<8 | int(count[1]), nil
}

func (t *ddcTransport) Read(p []byte) (int, error) {
	for {
		select {
		case <-t.closed:
			return 0, io.EOF
		default:
		}

		n, err := t.available()
		if err != nil {
			return 0, err
		}
		if n > 0 {
			if n > len(p) {
				n = len(p)
			}
			t.mu.Lock()
			err = t.dev.Tx([]byte{ddcRegStream}, p[:n])
			t.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return n, nil
		}

		select {
		case <-t.closed:
			return 0, io.EOF
		case <-time.After(t.poll):
		}
	}
}

func (t *ddcTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	err := t.dev.Tx(p, nil)
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *ddcTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.bus.Close()
	})
	return err
}
