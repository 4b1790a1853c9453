package ingress

// dedupWindow remembers the most recent N external message ids in receipt
// order. Membership checks are O(1); once full, the oldest id is evicted.
type dedupWindow struct {
	capacity int
	ring     []string
	next     int
	seen     map[string]struct{}
}

func newDedupWindow(capacity int) *dedupWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &dedupWindow{
		capacity: capacity,
		ring:     make([]string, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Observe records id and reports whether it was already present.
func (d *dedupWindow) Observe(id string) bool {
	if _, ok := d.seen[id]; ok {
		return true
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.next] = id
	d.next = (d.next + 1) % d.capacity
	d.seen[id] = struct{}{}
	return false
}

// Len returns the number of ids currently tracked.
func (d *dedupWindow) Len() int {
	return len(d.seen)
}
