// Package atclient implements the AT command client state machine: it
// serializes command/response exchanges over a shared byte stream while
// delivering interleaved unsolicited result codes (URCs) promptly.
//
// One Client owns one transport. All transport reads happen on the
// client's own goroutines; callers interact through the instance lock,
// SendCommand, and the cursor-based response reader. URC handlers run
// on a dedicated worker goroutine fed by a bounded event queue, so they
// never execute on the receive path.
package atclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"i4.energy/across/ubloxd/at"
	"i4.energy/across/ubloxd/port"
)

// Client is an AT command client bound to one transport instance.
//
// At most one command exchange is outstanding at a time; Lock
// serializes callers. The zero value is not usable, construct with
// Open.
type Client struct {
	transport port.Transport
	cfg       Config

	// Receive plumbing. readLoop feeds raw chunks, route owns the
	// receive buffer and tokenization, dispatch runs URC handlers.
	chunks    chan []byte
	reqs      chan *tokenRequest
	wakeCh    chan struct{}
	urcQueue  chan urcEvent
	unhandled chan string

	mu       sync.Mutex
	bindings []urcBinding
	lastErr  *DeviceError
	echo     string // sent command awaiting its echo, when suppression is on
	readErr  error  // terminal transport error, once the reader stopped

	// pending reports whether a command exchange is in flight. While it
	// is set the router tokenizes on demand only, so data blocks are
	// never consumed as lines behind the exchange reader's back.
	pending atomic.Bool
	// gen counts exchanges; token requests carry the generation they
	// belong to so the router can drop requests from a dead exchange.
	gen atomic.Uint64

	// Instance lock. sem is the mutual exclusion itself; owner/depth
	// implement reentrancy for the context that acquired it.
	sem    chan struct{}
	ownMu  sync.Mutex
	owner  uint64
	depth  int
	tokens atomic.Uint64

	// Exchange cursor state, touched only by the lock holder.
	params *at.Params
	line   string
	final  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// tokenRequest asks the router for the exchange's next token: one
// response line when raw == 0, otherwise exactly raw bytes of the
// stream unparsed.
type tokenRequest struct {
	raw   int
	gen   uint64
	reply chan tokenReply
}

type tokenReply struct {
	line string
	data []byte
	err  error
}

// Open dials the transport and starts the client's receive machinery.
// The returned client must be shut down with Close.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	transport, err := cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: transport,
		cfg:       cfg,
		chunks:    make(chan []byte, 8),
		reqs:      make(chan *tokenRequest),
		wakeCh:    make(chan struct{}, 1),
		urcQueue:  make(chan urcEvent, cfg.URCQueueSize),
		unhandled: make(chan string, 100),
		sem:       make(chan struct{}, 1),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(3)
	go c.readLoop()
	go c.route()
	go c.dispatch()

	return c, nil
}

// Close shuts down the client and releases the transport. Any blocked
// response read or lock wait is aborted. Close on an already closed
// client returns ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	c.cancel()
	err := c.transport.Close() // unblocks the reader
	c.wg.Wait()
	return err
}

// Unhandled returns the channel carrying unsolicited lines that matched
// no registered URC binding. The channel is buffered; lines are dropped
// when no one consumes them.
func (c *Client) Unhandled() <-chan string {
	return c.unhandled
}

// LastDeviceError returns the most recent final error result code the
// module reported, or nil if none was seen. Useful for diagnosing a
// higher-level operation that just failed.
func (c *Client) LastDeviceError() *DeviceError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// readLoop is the only reader of the transport. It forwards raw chunks
// to the router and records the terminal error when the transport dies.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.chunks)

	buf := make([]byte, 512)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case c.chunks <- data:
			case <-c.ctx.Done():
				return
			}
		}
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
	}
}

// route owns the receive buffer. While no exchange is outstanding it
// tokenizes freely, feeding URC bindings and the unhandled channel.
// During an exchange it tokenizes only on the reader's request, one
// token (or one raw block) per request, sidelining URCs and echo as it
// scans. Keeping tokenization demand-driven is what lets ReadBytes
// claim a data block before it can be mistaken for response lines.
func (c *Client) route() {
	defer c.wg.Done()
	defer close(c.urcQueue)

	var (
		acc    []byte
		req    *tokenRequest
		term   = []byte(c.cfg.ResponseTerminator)
		prompt = []byte(c.cfg.Prompt)
	)

	for {
		// A request left behind by a reader that gave up dies with its
		// exchange; it must not swallow the next exchange's tokens.
		if req != nil && (req.gen != c.gen.Load() || !c.pending.Load()) {
			req.reply <- tokenReply{err: ErrTimeout}
			req = nil
		}

		progress := false
		switch {
		case req != nil && req.raw > 0:
			if len(acc) >= req.raw {
				data := make([]byte, req.raw)
				copy(data, acc[:req.raw])
				acc = append(acc[:0], acc[req.raw:]...)
				req.reply <- tokenReply{data: data}
				req = nil
				progress = true
			}

		case req != nil:
			if advance, token := at.ScanToken(acc, term, prompt); advance > 0 {
				line := string(token)
				acc = append(acc[:0], acc[advance:]...)
				if !c.sideline(line) {
					req.reply <- tokenReply{line: line}
					req = nil
				}
				progress = true
			}

		case !c.pending.Load():
			if advance, token := at.ScanToken(acc, term, prompt); advance > 0 {
				line := string(token)
				acc = append(acc[:0], acc[advance:]...)
				if !c.sideline(line) {
					// Unsolicited but unbound; orphaned final codes and
					// prompts end up here too.
					select {
					case c.unhandled <- line:
					default:
					}
				}
				progress = true
			}
		}
		if progress {
			continue
		}

		reqs := c.reqs
		if req != nil {
			reqs = nil // serve one request at a time
		}

		select {
		case data, ok := <-c.chunks:
			if !ok {
				if req != nil {
					req.reply <- tokenReply{err: c.transportError()}
				}
				return
			}
			acc = append(acc, data...)
		case r := <-reqs:
			req = r
		case <-c.wakeCh:
			// Exchange state changed; re-evaluate what to do with the
			// buffered bytes.
		case <-c.ctx.Done():
			if req != nil {
				req.reply <- tokenReply{err: ErrClosed}
			}
			return
		}
	}
}

// sideline consumes the tokens that never reach the exchange reader:
// empty pulses, the command echo, and registered URCs. It reports
// whether the line was consumed.
func (c *Client) sideline(line string) bool {
	if line == "" {
		return true
	}

	// Command echo: the module repeating the command we just sent is
	// discarded, never misclassified as a response line.
	if c.cfg.EchoSuppression {
		c.mu.Lock()
		if c.echo != "" && line == c.echo {
			c.echo = ""
			c.mu.Unlock()
			return true
		}
		c.mu.Unlock()
	}

	// A registered URC prefix wins over the pending exchange, even
	// mid-response: modems interleave URCs freely.
	if h, ok := c.matchURC(line); ok {
		select {
		case c.urcQueue <- urcEvent{handler: h, line: line}:
		default:
			// Queue full. Dropping beats stalling the receive path.
		}
		return true
	}
	return false
}

// wake nudges the router after exchange state changes so it reconsiders
// already-buffered bytes (e.g. dispatches URCs queued up behind a
// finished exchange).
func (c *Client) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// transportError reports why the receive side stopped.
func (c *Client) transportError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return ErrClosed
}

// timeoutError maps a context expiry onto the client's taxonomy.
func timeoutError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// withDeadline applies the configured command timeout when the caller's
// context carries no deadline of its own.
func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.cfg.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.CommandTimeout)
}

// nextToken blocks until the exchange's next response token arrives.
func (c *Client) nextToken(ctx context.Context) (string, error) {
	reply, err := c.request(ctx, &tokenRequest{gen: c.gen.Load(), reply: make(chan tokenReply, 1)})
	if err != nil {
		return "", err
	}
	return reply.line, nil
}

// request submits one token request to the router and waits it out.
func (c *Client) request(ctx context.Context, req *tokenRequest) (tokenReply, error) {
	select {
	case c.reqs <- req:
	case <-ctx.Done():
		return tokenReply{}, timeoutError(ctx)
	case <-c.ctx.Done():
		return tokenReply{}, ErrClosed
	}

	select {
	case reply := <-req.reply:
		return reply, reply.err
	case <-ctx.Done():
		// The router will answer the abandoned request into its
		// buffered channel; the reply is discarded with it.
		return tokenReply{}, timeoutError(ctx)
	}
}
