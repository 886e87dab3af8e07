package client

import "github.com/momentics/hioload-wamp/internal/concurrency"

// OwnedExecutor exposes the worker pool of the current link.
func OwnedExecutor(c *Client) *concurrency.Executor {
	l := c.link.Load()
	if l == nil {
		return nil
	}
	return l.owned
}
