package cache

import "time"

// SetClock replaces the time source. Test-only.
func (c *LRUCache[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
