package atclient

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/ubloxd/at"
)

// SendCommand writes the command text plus terminator to the transport
// and marks an exchange as outstanding. It does not wait for any
// response: reading is decoupled so multi-line and prompted exchanges
// stay possible. The context must own the instance lock.
func (c *Client) SendCommand(ctx context.Context, text string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.holdsLock(ctx) {
		return ErrNotLocked
	}

	c.params = nil
	c.line = ""
	c.final = ""

	c.mu.Lock()
	c.echo = strings.TrimSpace(text)
	c.mu.Unlock()
	c.gen.Add(1)
	c.pending.Store(true)

	wire := strings.TrimSpace(text) + c.cfg.CommandTerminator
	if _, err := c.transport.Write([]byte(wire)); err != nil {
		c.pending.Store(false)
		return fmt.Errorf("write command %q: %w", text, err)
	}
	return nil
}

// SendBytes writes raw bytes to the transport without a terminator,
// for data that follows a prompt (message bodies, socket payloads).
// The context must own the instance lock.
func (c *Client) SendBytes(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.holdsLock(ctx) {
		return ErrNotLocked
	}
	if _, err := c.transport.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// ResponseStart blocks until the outstanding command's information
// response line with the given prefix arrives, then positions the
// parameter cursor just past the prefix. An empty prefix accepts the
// first information line whatever it looks like.
//
// If the final result code arrives first the exchange is over:
// ErrNoResponseLine for OK, a DeviceError for error results. URC lines
// never satisfy (or disturb) the wait; they are dispatched to their
// handlers on the side.
func (c *Client) ResponseStart(ctx context.Context, prefix string) error {
	return c.ResponseLine(ctx, prefix)
}

// ResponseLine waits for the next information response line with the
// given prefix, for responses spanning several lines. Semantics match
// ResponseStart.
func (c *Client) ResponseLine(ctx context.Context, prefix string) error {
	if !c.holdsLock(ctx) {
		return ErrNotLocked
	}
	if c.final != "" {
		if err := c.finalStatus(); err != nil {
			return err
		}
		return ErrNoResponseLine
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	for {
		line, err := c.nextToken(ctx)
		if err != nil {
			return err
		}

		switch at.Classify(line) {
		case at.TypeFinal:
			c.noteFinal(line)
			if err := c.finalStatus(); err != nil {
				return err
			}
			return ErrNoResponseLine

		case at.TypePrompt:
			if prefix == c.cfg.Prompt {
				c.params = at.NewParams("")
				c.line = line
				return nil
			}
			// A prompt nobody asked for; skip it.

		default:
			if prefix == "" || strings.HasPrefix(line, prefix) {
				c.params = at.NewParams(line)
				c.line = line
				return nil
			}
			// Unexpected information line for this exchange; skip it.
		}
	}
}

// WaitPrompt blocks until the module presents the data input prompt.
func (c *Client) WaitPrompt(ctx context.Context) error {
	if !c.holdsLock(ctx) {
		return ErrNotLocked
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	for {
		line, err := c.nextToken(ctx)
		if err != nil {
			return err
		}
		switch at.Classify(line) {
		case at.TypePrompt:
			return nil
		case at.TypeFinal:
			c.noteFinal(line)
			if err := c.finalStatus(); err != nil {
				return err
			}
			return ErrNoResponseLine
		}
	}
}

// ReadString returns the next parameter of the current information
// response line. ResponseStart (or ResponseLine) must have matched a
// line first.
func (c *Client) ReadString() (string, error) {
	if c.params == nil {
		return "", ErrInvalidParameter
	}
	return c.params.Next()
}

// ReadInt returns the next parameter parsed as a decimal integer.
func (c *Client) ReadInt() (int, error) {
	if c.params == nil {
		return 0, ErrInvalidParameter
	}
	return c.params.NextInt()
}

// ResponseText returns the current information response line verbatim.
// ResponseStart (or ResponseLine) must have matched a line first.
func (c *Client) ResponseText() (string, error) {
	if c.params == nil {
		return "", ErrInvalidParameter
	}
	return c.line, nil
}

// ReadBytes fills p with exactly len(p) raw bytes from the receive
// stream, bypassing line tokenization. Use it for data blocks of known
// length announced by the preceding information line. The context must
// own the instance lock.
func (c *Client) ReadBytes(ctx context.Context, p []byte) error {
	if !c.holdsLock(ctx) {
		return ErrNotLocked
	}
	if len(p) == 0 {
		return nil
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	reply, err := c.request(ctx, &tokenRequest{raw: len(p), gen: c.gen.Load(), reply: make(chan tokenReply, 1)})
	if err != nil {
		return err
	}
	copy(p, reply.data)
	return nil
}

// ResponseStop consumes the remainder of the outstanding response
// through its final result code and ends the exchange. It returns nil
// when the module answered OK, the DeviceError when it answered an
// error result, or ErrTimeout when no final code arrived in time; in
// every case the instance is left reusable.
func (c *Client) ResponseStop(ctx context.Context) error {
	if !c.holdsLock(ctx) {
		return ErrNotLocked
	}

	defer func() {
		c.pending.Store(false)
		c.params = nil
		c.line = ""
		c.wake()
	}()

	if c.final != "" {
		return c.finalStatus()
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	for {
		line, err := c.nextToken(ctx)
		if err != nil {
			return err
		}
		if at.Classify(line) == at.TypeFinal {
			c.noteFinal(line)
			return c.finalStatus()
		}
		// Information lines the caller did not ask for are discarded.
	}
}

// Command runs a complete one-shot exchange: lock, send, wait for the
// final result code. Use the cursor API directly when the response
// carries information lines you need.
func (c *Client) Command(ctx context.Context, text string) error {
	lctx, err := c.Lock(ctx)
	if err != nil {
		return err
	}
	defer c.Unlock(lctx)

	if err := c.SendCommand(lctx, text); err != nil {
		return err
	}
	return c.ResponseStop(lctx)
}

// noteFinal records the exchange's final result code and, for device
// errors, stores the cause for LastDeviceError.
func (c *Client) noteFinal(line string) {
	c.final = line
	if at.IsErrorFinal(line) {
		c.mu.Lock()
		c.lastErr = deviceError(line)
		c.mu.Unlock()
	}
}

// finalStatus maps the recorded final result code onto the error
// taxonomy: nil for OK, the stored DeviceError otherwise.
func (c *Client) finalStatus() error {
	if !at.IsErrorFinal(c.final) {
		return nil
	}
	return deviceError(c.final)
}
