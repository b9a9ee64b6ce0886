package atclient

import "strings"

// URCHandler receives one unsolicited result code line. Handlers run
// sequentially on the client's event worker goroutine, never on the
// receive path, so a handler may block briefly or even issue its own
// commands (taking the instance lock as usual). Delivery order matches
// wire order, but a handler is not guaranteed to run before the next
// line of a pending command's response is consumed.
type URCHandler func(line string)

type urcBinding struct {
	prefix  string
	handler URCHandler
}

type urcEvent struct {
	handler URCHandler
	line    string
}

// HandleURC registers handler for every unsolicited line starting with
// prefix. Bindings are matched in registration order; two simultaneous
// bindings must not share an identical prefix.
func (c *Client) HandleURC(prefix string, handler URCHandler) error {
	if prefix == "" || handler == nil {
		return ErrInvalidParameter
	}
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.bindings {
		if b.prefix == prefix {
			return ErrPrefixInUse
		}
	}
	c.bindings = append(c.bindings, urcBinding{prefix: prefix, handler: handler})
	return nil
}

// RemoveURC drops the binding with the given prefix, if any. Events
// already queued for the handler may still be delivered.
func (c *Client) RemoveURC(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range c.bindings {
		if b.prefix == prefix {
			c.bindings = append(c.bindings[:i], c.bindings[i+1:]...)
			return
		}
	}
}

// matchURC finds the handler bound to a line, in registration order.
func (c *Client) matchURC(line string) (URCHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.bindings {
		if strings.HasPrefix(line, b.prefix) {
			return b.handler, true
		}
	}
	return nil, false
}

// dispatch is the event worker: it executes URC handlers off the
// bounded queue, one at a time, in arrival order.
func (c *Client) dispatch() {
	defer c.wg.Done()
	for ev := range c.urcQueue {
		ev.handler(ev.line)
	}
}
