package relay

// DedupCache absorbs at-least-once redelivery from reconnects and
// overlapping subscription plans. It is a short-term, best-effort
// window, not a replay-proof guarantee.
//
// Not safe for concurrent use; the dispatch loop owns it exclusively
// for the lifetime of a session.
type DedupCache struct {
	capacity int
	seen     map[string]struct{}
}

func NewDedupCache(capacity int) *DedupCache {
	if capacity < 1 {
		capacity = 1
	}
	return &DedupCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

func (c *DedupCache) Seen(id string) bool {
	_, ok := c.seen[id]
	return ok
}

// Record inserts id. At capacity the whole window is cleared and only
// the newest id re-inserted.
func (c *DedupCache) Record(id string) {
	if len(c.seen) >= c.capacity {
		c.seen = make(map[string]struct{}, c.capacity)
	}
	c.seen[id] = struct{}{}
}

func (c *DedupCache) Len() int {
	return len(c.seen)
}
