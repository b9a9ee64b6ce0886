package atclient

import "context"

// lockTokenKey marks a context as owning the instance lock.
type lockTokenKey struct{}

// Lock acquires exclusive use of the client for a multi-step command
// sequence, blocking until the instance is free or the deadline
// expires (the configured command timeout applies when the context has
// none). The returned context carries the ownership token: pass it to
// SendCommand and the response reader, and to Unlock exactly once per
// successful Lock.
//
// Lock is reentrant for the same logical caller: calling Lock again
// with a context derived from the returned one nests instead of
// deadlocking. That is what permits issuing a command from inside a URC
// handler that already holds the lock.
func (c *Client) Lock(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrInvalidParameter
	}
	if c.closed.Load() {
		return ctx, ErrClosed
	}

	if tok, ok := ctx.Value(lockTokenKey{}).(uint64); ok {
		c.ownMu.Lock()
		if c.owner == tok && c.depth > 0 {
			c.depth++
			c.ownMu.Unlock()
			return ctx, nil
		}
		c.ownMu.Unlock()
	}

	wait, cancel := c.withDeadline(ctx)
	defer cancel()

	select {
	case c.sem <- struct{}{}:
	case <-wait.Done():
		return ctx, timeoutError(wait)
	case <-c.ctx.Done():
		return ctx, ErrClosed
	}

	tok := c.tokens.Add(1)
	c.ownMu.Lock()
	c.owner = tok
	c.depth = 1
	c.ownMu.Unlock()

	return context.WithValue(ctx, lockTokenKey{}, tok), nil
}

// Unlock releases the exclusive section acquired by Lock. The context
// must be the one Lock returned (or derived from it). Releasing the
// outermost nesting level clears any leftover exchange state, so a
// timed-out command never leaks into the next caller's exchange.
func (c *Client) Unlock(ctx context.Context) error {
	if ctx == nil {
		return ErrInvalidParameter
	}
	tok, ok := ctx.Value(lockTokenKey{}).(uint64)
	if !ok {
		return ErrNotLocked
	}

	c.ownMu.Lock()
	if c.owner != tok || c.depth == 0 {
		c.ownMu.Unlock()
		return ErrNotLocked
	}
	c.depth--
	release := c.depth == 0
	if release {
		c.owner = 0
	}
	c.ownMu.Unlock()

	if release {
		c.finishExchange()
		<-c.sem
	}
	return nil
}

// holdsLock reports whether ctx currently owns the instance lock.
func (c *Client) holdsLock(ctx context.Context) bool {
	tok, ok := ctx.Value(lockTokenKey{}).(uint64)
	if !ok {
		return false
	}
	c.ownMu.Lock()
	defer c.ownMu.Unlock()
	return c.owner == tok && c.depth > 0
}

// finishExchange clears the pending-command state. Tokens the finished
// exchange never consumed stay in the receive buffer and are routed as
// unsolicited once the router resumes autonomous scanning.
func (c *Client) finishExchange() {
	c.pending.Store(false)
	c.params = nil
	c.line = ""
	c.final = ""
	c.mu.Lock()
	c.echo = ""
	c.mu.Unlock()
	c.wake()
}
