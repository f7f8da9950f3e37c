package tape

// refTable tracks the number of live block references on each value. It
// makes "may this value's storage be released" an explicit, queryable
// condition instead of an incidental runtime event. Recording and replaying
// a block retain, clearing it releases.
type refTable struct {
	counts map[uint64]int
}

func newRefTable() *refTable {
	return &refTable{counts: make(map[uint64]int)}
}

func (r *refTable) retain(id uint64) {
	r.counts[id]++
}

func (r *refTable) release(id uint64) {
	if r.counts[id] > 0 {
		r.counts[id]--
	}
}

func (r *refTable) count(id uint64) int {
	return r.counts[id]
}
