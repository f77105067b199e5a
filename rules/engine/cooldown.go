package engine

import (
	"sync"
	"time"
)

// cooldownTracker remembers when each cooldown key last produced an alert.
type cooldownTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{last: make(map[string]time.Time)}
}

// allow reports whether an alert for key may be emitted at now and, if so,
// records it. The check and the update are atomic. A non-positive cooldown
// always allows and records nothing.
func (c *cooldownTracker) allow(key string, cooldown time.Duration, now time.Time) bool {
	if cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	c.last[key] = now
	return true
}
