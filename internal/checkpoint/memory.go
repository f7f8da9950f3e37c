package checkpoint

import "fmt"

// MemoryStore keeps checkpoints in process memory. It is the fast tier.
type MemoryStore struct {
	blocks map[int][]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[int][]Entry)}
}

// Write stores a deep copy of the entries for the block.
func (s *MemoryStore) Write(block int, entries []Entry) error {
	copied := make([]Entry, len(entries))
	for i, e := range entries {
		data := make([]float64, len(e.Data))
		copy(data, e.Data)
		copied[i] = Entry{ID: e.ID, Name: e.Name, Data: data}
	}
	s.blocks[block] = copied
	return nil
}

// Read returns the stored entries for the block. The returned slices are
// copies; callers may modify them.
func (s *MemoryStore) Read(block int) ([]Entry, error) {
	entries, ok := s.blocks[block]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, block)
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		data := make([]float64, len(e.Data))
		copy(data, e.Data)
		out[i] = Entry{ID: e.ID, Name: e.Name, Data: data}
	}
	return out, nil
}

// Delete removes the block's checkpoint.
func (s *MemoryStore) Delete(block int) error {
	if _, ok := s.blocks[block]; !ok {
		return fmt.Errorf("%w: block %d", ErrNotFound, block)
	}
	delete(s.blocks, block)
	return nil
}

// Blocks returns the checkpointed block indices.
func (s *MemoryStore) Blocks() []int {
	out := make([]int, 0, len(s.blocks))
	for b := range s.blocks {
		out = append(out, b)
	}
	return out
}

// Close releases all stored checkpoints.
func (s *MemoryStore) Close() error {
	s.blocks = make(map[int][]Entry)
	return nil
}
