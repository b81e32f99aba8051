package expressions

import "sync"

// progCache memoizes compiled expression programs by source text.
// Compilation runs under the write lock, so concurrent callers asking for
// the same new expression compile it once.
type progCache[P any] struct {
	mu      sync.RWMutex
	entries map[string]P
}

func newProgCache[P any]() *progCache[P] {
	return &progCache[P]{entries: make(map[string]P)}
}

func (c *progCache[P]) get(source string, compile func(string) (P, error)) (P, error) {
	c.mu.RLock()
	p, ok := c.entries[source]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[source]; ok {
		return p, nil
	}
	p, err := compile(source)
	if err != nil {
		var zero P
		return zero, err
	}
	c.entries[source] = p
	return p, nil
}
