package relayerr

import "sync"

// Collector accumulates the warnings and errors produced while enriching one
// request. It is safe for concurrent append: independent observables in a
// batch run on separate workers but share one collector.
type Collector struct {
	mu      sync.Mutex
	entries []*Error
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends entries, dropping nils.
func (c *Collector) Add(entries ...*Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e != nil {
			c.entries = append(c.entries, e)
		}
	}
}

// AddError converts err into an entry and appends it.
func (c *Collector) AddError(err error) {
	if err == nil {
		return
	}
	c.Add(Wrap(err))
}

// Entries returns a copy of the accumulated entries in append order.
func (c *Collector) Entries() []*Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Error, len(c.entries))
	copy(out, c.entries)
	return out
}

// HasFatal reports whether any accumulated entry is fatal.
func (c *Collector) HasFatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.Fatal() {
			return true
		}
	}
	return false
}

// Len returns the number of accumulated entries.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
