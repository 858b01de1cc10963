package ledger

import "sync"

// HistoryCursor walks a key's committed versions oldest first. It is finite
// and forward-only; Close is idempotent and required on every exit path.
type HistoryCursor struct {
	mu       sync.Mutex
	versions []Version
	pos      int
	closed   bool
	release  func()
}

// Next returns the next version and true, or the zero Version and false once
// the cursor is exhausted or closed.
func (c *HistoryCursor) Next() (Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pos >= len(c.versions) {
		return Version{}, false
	}
	v := c.versions[c.pos]
	c.pos++
	return v, true
}

// Close releases the cursor. Safe to call more than once, and safe to call
// before the cursor is exhausted.
func (c *HistoryCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.release != nil {
		c.release()
	}
	return nil
}

// Collect drains the cursor into a slice and closes it.
func (c *HistoryCursor) Collect() []Version {
	defer c.Close()
	var out []Version
	for {
		v, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
