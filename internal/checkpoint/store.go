// Package checkpoint stores and restores block boundary states for the
// checkpointing engine.
//
// A checkpoint is the set of values that blocks from a boundary onward
// depend on but do not produce. Stores operate on plain data snapshots so
// the same interface backs the in-memory fast tier and the on-disk slow
// tier; restoring into live values is the engine's job.
package checkpoint

import "errors"

// Errors reported by stores.
var (
	// ErrNotFound is returned when no checkpoint exists for the block.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrStorage is returned when the backing storage fails.
	ErrStorage = errors.New("checkpoint: storage failure")
	// ErrChecksumMismatch is returned when stored data fails verification.
	ErrChecksumMismatch = errors.New("checkpoint: checksum mismatch")
)

// Entry is the snapshot of one value at a block boundary.
type Entry struct {
	ID   uint64    `json:"id"`
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

// Store persists block boundary snapshots keyed by block index. Writing a
// block that already has a checkpoint replaces it. Implementations are not
// required to be safe for concurrent use.
type Store interface {
	Write(block int, entries []Entry) error
	Read(block int) ([]Entry, error)
	Delete(block int) error

	// Blocks returns the indices currently checkpointed, in no
	// particular order.
	Blocks() []int

	Close() error
}

// Tiered pairs a fast store with a slow store. Either may be nil when the
// corresponding budget is zero.
type Tiered struct {
	Fast Store
	Slow Store
}

func (t Tiered) store(slow bool) (Store, error) {
	s := t.Fast
	if slow {
		s = t.Slow
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// Write stores entries on the selected tier.
func (t Tiered) Write(block int, slow bool, entries []Entry) error {
	s, err := t.store(slow)
	if err != nil {
		return err
	}
	return s.Write(block, entries)
}

// Read restores entries from the selected tier.
func (t Tiered) Read(block int, slow bool) ([]Entry, error) {
	s, err := t.store(slow)
	if err != nil {
		return nil, err
	}
	return s.Read(block)
}

// Delete removes the block's checkpoint from whichever tier holds it.
// Deleting a block with no checkpoint is not an error.
func (t Tiered) Delete(block int) error {
	for _, s := range []Store{t.Fast, t.Slow} {
		if s == nil {
			continue
		}
		if err := s.Delete(block); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// Close closes both tiers.
func (t Tiered) Close() error {
	var first error
	for _, s := range []Store{t.Fast, t.Slow} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
