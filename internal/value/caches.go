package value

// CacheRef is the invalidation handle of one item of cached derived data.
// Attach it to every value the item was computed from; a mutation of any of
// them clears it.
type CacheRef struct {
	valid bool
}

// Valid reports whether the cached item is still usable.
func (r *CacheRef) Valid() bool { return r != nil && r.valid }

// Clear marks the cached item stale.
func (r *CacheRef) Clear() { r.valid = false }

// Caches is the registry of cached derived data attached to one value. The
// attached set is the value's caching state: mutation invalidates every
// entry and drops the registrations.
type Caches struct {
	refs []*CacheRef
}

// Attach registers a cache entry for invalidation when the value mutates.
func (c *Caches) Attach(r *CacheRef) {
	r.valid = true
	c.refs = append(c.refs, r)
}

// Invalidate clears every attached entry.
func (c *Caches) Invalidate() {
	if len(c.refs) == 0 {
		return
	}
	for _, r := range c.refs {
		r.Clear()
	}
	c.refs = c.refs[:0]
}

// Len returns the number of attached entries.
func (c *Caches) Len() int { return len(c.refs) }

// SnapshotCache shares duplicates of values across repeated captures: a
// duplicate taken while the source is unchanged is reused rather than
// re-allocated. The tape uses this for forward-data capture, where one value
// commonly feeds several equations between mutations.
type SnapshotCache struct {
	entries map[uint64]*snapshotEntry
}

type snapshotEntry struct {
	ref CacheRef
	dup Value
}

// NewSnapshotCache creates an empty snapshot cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{entries: make(map[uint64]*snapshotEntry)}
}

// Snapshot returns a duplicate of v, shared with earlier snapshots while v
// has not mutated since.
func (c *SnapshotCache) Snapshot(v Value) Value {
	if e, ok := c.entries[v.ID()]; ok && e.ref.Valid() {
		return e.dup
	}
	e := &snapshotEntry{dup: v.Dup()}
	v.Caches().Attach(&e.ref)
	c.entries[v.ID()] = e
	return e.dup
}

// Clear drops every entry.
func (c *SnapshotCache) Clear() {
	c.entries = make(map[uint64]*snapshotEntry)
}
