package upload

import "sync"

// cancelSet is the in-memory set of handles whose owner asked to stop.
// Membership is cleared only when the session reaches a terminal outcome.
type cancelSet struct {
	mu      sync.Mutex
	handles map[string]struct{}
}

func newCancelSet() *cancelSet {
	return &cancelSet{handles: make(map[string]struct{})}
}

func (c *cancelSet) add(handle string) {
	c.mu.Lock()
	c.handles[handle] = struct{}{}
	c.mu.Unlock()
}

func (c *cancelSet) has(handle string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.handles[handle]

	return ok
}

func (c *cancelSet) clear(handle string) {
	c.mu.Lock()
	delete(c.handles, handle)
	c.mu.Unlock()
}
