package ledger

// Dedup is a bounded set of seen trade IDs. It prevents duplicate ledger
// updates when consecutive iterations observe the same fill, and evicts
// the oldest entries once the capacity is exceeded so the set cannot grow
// without bound.
type Dedup struct {
	max   int
	ids   map[string]struct{}
	order []string
}

// NewDedup creates a dedup set holding at most max IDs.
func NewDedup(max int) *Dedup {
	if max < 1 {
		max = 1
	}
	return &Dedup{
		max: max,
		ids: make(map[string]struct{}, max),
	}
}

// Seen reports whether the ID is already in the set.
func (d *Dedup) Seen(id string) bool {
	_, ok := d.ids[id]
	return ok
}

// Add inserts the ID and reports whether it was newly added. Oldest IDs
// are evicted in insertion order once the set is full.
func (d *Dedup) Add(id string) bool {
	if d.Seen(id) {
		return false
	}
	d.ids[id] = struct{}{}
	d.order = append(d.order, id)
	for len(d.order) > d.max {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.ids, oldest)
	}
	return true
}

// Len returns the current number of tracked IDs.
func (d *Dedup) Len() int { return len(d.ids) }
