// Package gnss drives a u-blox GNSS receiver over the UBX binary
// protocol. It mirrors the AT client's shape one protocol over: a
// single reader goroutine decodes frames off the transport, poll
// request/response exchanges are serialized by a lock, and periodic
// messages (the binary analog of URCs) go to registered handlers.
package gnss

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/ubloxd/port"
	"i4.energy/across/ubloxd/ubx"
)

var (
	// ErrClosed is returned for operations on a closed device.
	ErrClosed = errors.New("gnss: device closed")

	// ErrTimeout is returned when the expected message did not arrive
	// within the caller's deadline. The device remains usable.
	ErrTimeout = errors.New("gnss: timeout")

	// ErrNak is returned by SendWithAck when the receiver rejected the
	// configuration message with ACK-NAK.
	ErrNak = errors.New("gnss: configuration rejected (ACK-NAK)")

	// ErrNoDialer is returned when a Device is constructed without a
	// Dialer.
	ErrNoDialer = errors.New("gnss: no dialer configured")
)

type Config struct {
	// Dialer opens the transport: typically port.SerialDialer for a
	// UART-connected receiver or port.I2CDialer for the DDC interface.
	Dialer port.Dialer
	// ResponseTimeout applies to Poll and SendWithAck when the caller's
	// context has no deadline. Defaults to 3 seconds.
	ResponseTimeout time.Duration
}

// Handler receives one periodic message. Handlers run on the device's
// reader goroutine and must not block.
type Handler func(msg ubx.Message)

// Device is a GNSS receiver bound to one transport.
type Device struct {
	transport port.Transport
	timeout   time.Duration

	// exchMu serializes poll/ack exchanges; at most one waiter exists.
	exchMu sync.Mutex

	mu       sync.Mutex
	waiter   *waiter
	handlers map[[2]byte]Handler
	readErr  error

	done   chan struct{}
	closed atomic.Bool
}

type waiter struct {
	match func(ubx.Message) bool
	ch    chan ubx.Message
}

// Open dials the transport and starts the reader.
func Open(ctx context.Context, cfg Config) (*Device, error) {
	if cfg.Dialer == nil {
		return nil, ErrNoDialer
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = 3 * time.Second
	}

	transport, err := cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	d := &Device{
		transport: transport,
		timeout:   cfg.ResponseTimeout,
		handlers:  make(map[[2]byte]Handler),
		done:      make(chan struct{}),
	}

	go d.readLoop()
	return d, nil
}

// Close releases the transport, which unblocks the reader, and waits
// for it to finish.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	err := d.transport.Close()
	<-d.done
	return err
}

// Handle registers a handler for periodic messages of the given class
// and ID, replacing any previous one. Register the message rate with
// the receiver (CFG-MSG) separately.
func (d *Device) Handle(class, id byte, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, [2]byte{class, id})
		return
	}
	d.handlers[[2]byte{class, id}] = h
}

// Send encodes and writes one message without waiting for anything
// back.
func (d *Device) Send(ctx context.Context, msg ubx.Message) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := msg.Encode()
	if err != nil {
		return err
	}
	if _, err := d.transport.Write(frame); err != nil {
		return fmt.Errorf("gnss: write frame: %w", err)
	}
	return nil
}

// Poll sends an empty-payload poll request for (class, id) and waits
// for the receiver's answer of the same class and ID.
func (d *Device) Poll(ctx context.Context, class, id byte) (ubx.Message, error) {
	return d.exchange(ctx,
		ubx.Message{Class: class, ID: id},
		func(m ubx.Message) bool { return m.Is(class, id) })
}

// SendWithAck sends a configuration message and waits for the
// receiver's ACK-ACK, returning ErrNak if it answers ACK-NAK instead.
func (d *Device) SendWithAck(ctx context.Context, msg ubx.Message) error {
	ack, err := d.exchange(ctx, msg, func(m ubx.Message) bool {
		return (m.Is(ubx.ClassAck, ubx.AckAck) || m.Is(ubx.ClassAck, ubx.AckNak)) &&
			len(m.Payload) >= 2 && m.Payload[0] == msg.Class && m.Payload[1] == msg.ID
	})
	if err != nil {
		return err
	}
	if ack.ID == ubx.AckNak {
		return ErrNak
	}
	return nil
}

// exchange performs one serialized request/response cycle.
func (d *Device) exchange(ctx context.Context, msg ubx.Message, match func(ubx.Message) bool) (ubx.Message, error) {
	if d.closed.Load() {
		return ubx.Message{}, ErrClosed
	}

	d.exchMu.Lock()
	defer d.exchMu.Unlock()

	if _, ok := ctx.Deadline(); !ok && d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	w := &waiter{match: match, ch: make(chan ubx.Message, 1)}
	d.mu.Lock()
	d.waiter = w
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.waiter = nil
		d.mu.Unlock()
	}()

	if err := d.Send(ctx, msg); err != nil {
		return ubx.Message{}, err
	}

	select {
	case m := <-w.ch:
		return m, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ubx.Message{}, ErrTimeout
		}
		return ubx.Message{}, ctx.Err()
	case <-d.done:
		return ubx.Message{}, d.readError()
	}
}

func (d *Device) readError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return d.readErr
	}
	return ErrClosed
}

// readLoop is the only reader of the transport. Frames satisfy the
// outstanding exchange first; everything else goes to the periodic
// handlers.
func (d *Device) readLoop() {
	defer close(d.done)

	r := ubx.NewReader(d.transport)
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			d.mu.Lock()
			d.readErr = err
			d.mu.Unlock()
			return
		}

		d.mu.Lock()
		if w := d.waiter; w != nil && w.match(msg) {
			d.waiter = nil
			d.mu.Unlock()
			w.ch <- msg
			continue
		}
		h := d.handlers[[2]byte{msg.Class, msg.ID}]
		d.mu.Unlock()

		if h != nil {
			h(msg)
		}
	}
}
