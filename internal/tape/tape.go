// Package tape implements the append-only equation log.
//
// Equations are recorded in forward-evaluation order and partitioned into
// numbered blocks. The tape owns the dependency bookkeeping: per-value
// reference counts, the producing equation of each value (unique, enforced
// at record time) and the structural queries the checkpointing engine needs
// (which values cross a block boundary). Blocks can be replayed, which
// re-runs their forward solves, and cleared, which zeroes produced contents
// and drops captured forward data to bound memory.
package tape

import (
	"errors"
	"fmt"

	"github.com/adjoint-ml/adjoint/internal/equation"
	"github.com/adjoint-ml/adjoint/internal/value"
)

// ErrInvalidState is returned when the tape is used in the wrong mode:
// recording after finalization, closing an empty block, replaying or
// clearing an out-of-range block, or recording a second producer for a
// value.
var ErrInvalidState = errors.New("tape: invalid tape state")

// position locates an equation on the tape.
type position struct {
	block, index int
}

// recorded is one tape entry: the equation and the captured values of its
// nonlinear dependencies at forward-solve time. data is nil after a Clear.
type recorded struct {
	eq   equation.Equation
	data []value.Value
}

// Tape is the block-partitioned equation log.
type Tape struct {
	blocks    [][]*recorded
	live      []bool // per block, false once cleared
	finalized bool

	refs      *refTable
	producers map[uint64]position
	snaps     *value.SnapshotCache
}

// New creates an empty tape with one open block.
func New() *Tape {
	return &Tape{
		blocks:    [][]*recorded{nil},
		live:      []bool{true},
		refs:      newRefTable(),
		producers: make(map[uint64]position),
		snaps:     value.NewSnapshotCache(),
	}
}

// Record appends eq to the current block, captures its forward data and
// retains references on its dependencies and outputs.
//
// Recording fails with ErrInvalidState when the tape is finalized, or when
// an output of eq already has a producing equation on the tape (the
// single-producer property that makes producer lookup well-defined).
func (t *Tape) Record(eq equation.Equation) error {
	if t.finalized {
		return fmt.Errorf("%w: record on finalized tape", ErrInvalidState)
	}
	for _, x := range eq.Outputs() {
		if p, ok := t.producers[x.ID()]; ok {
			return fmt.Errorf("%w: %q already produced by equation %d of block %d",
				ErrInvalidState, x.Name(), p.index, p.block)
		}
	}

	block := len(t.blocks) - 1
	r := &recorded{eq: eq, data: t.captureForwardData(eq)}
	t.blocks[block] = append(t.blocks[block], r)
	for _, x := range eq.Outputs() {
		t.producers[x.ID()] = position{block: block, index: len(t.blocks[block]) - 1}
	}
	for _, dep := range eq.Dependencies() {
		t.refs.retain(dep.ID())
	}
	return nil
}

// captureForwardData snapshots the current nonlinear dependency values. A
// value feeding several equations between mutations shares one snapshot; any
// mutation invalidates it, so each capture still reflects the value at
// capture time.
func (t *Tape) captureForwardData(eq equation.Equation) []value.Value {
	nl := eq.NonlinearDependencies()
	data := make([]value.Value, len(nl))
	for i, dep := range nl {
		data[i] = t.snaps.Snapshot(dep)
	}
	return data
}

// BlockOption configures NewBlock.
type BlockOption func(*blockOptions)

type blockOptions struct {
	allowEmpty bool
}

// AllowEmpty permits closing a block with no recorded equations.
func AllowEmpty() BlockOption {
	return func(o *blockOptions) { o.allowEmpty = true }
}

// NewBlock closes the current block and opens the next, returning the new
// block index.
func (t *Tape) NewBlock(opts ...BlockOption) (int, error) {
	if t.finalized {
		return 0, fmt.Errorf("%w: new block on finalized tape", ErrInvalidState)
	}
	var o blockOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(t.blocks[len(t.blocks)-1]) == 0 && !o.allowEmpty {
		return 0, fmt.Errorf("%w: closing empty block %d", ErrInvalidState, len(t.blocks)-1)
	}
	t.blocks = append(t.blocks, nil)
	t.live = append(t.live, true)
	return len(t.blocks) - 1, nil
}

// Finalize closes the tape. Further recording fails; the recorded structure
// remains valid for replay and reverse sweeps. A trailing empty block is
// dropped.
func (t *Tape) Finalize() {
	if t.finalized {
		return
	}
	if n := len(t.blocks); n > 1 && len(t.blocks[n-1]) == 0 {
		t.blocks = t.blocks[:n-1]
		t.live = t.live[:n-1]
	}
	t.finalized = true
}

// Finalized reports whether the tape has been finalized.
func (t *Tape) Finalized() bool { return t.finalized }

// Blocks returns the number of blocks.
func (t *Tape) Blocks() int { return len(t.blocks) }

// Len returns the number of equations in a block.
func (t *Tape) Len(block int) int {
	if block < 0 || block >= len(t.blocks) {
		return 0
	}
	return len(t.blocks[block])
}

// Equation returns the i-th equation of a block.
func (t *Tape) Equation(block, i int) equation.Equation {
	return t.blocks[block][i].eq
}

// ForwardData returns the captured nonlinear dependency values of the i-th
// equation of a block, or nil when they have been cleared.
func (t *Tape) ForwardData(block, i int) []value.Value {
	return t.blocks[block][i].data
}

// Replay re-runs the forward solve of every equation in the block in
// original order, recapturing forward data and re-retaining the references
// a Clear released. Dependencies produced outside the block must already
// hold valid content.
func (t *Tape) Replay(block int) error {
	if block < 0 || block >= len(t.blocks) {
		return fmt.Errorf("%w: replay of block %d of %d", ErrInvalidState, block, len(t.blocks))
	}
	for i, r := range t.blocks[block] {
		if err := r.eq.ForwardSolve(r.eq.Outputs(), nil); err != nil {
			return fmt.Errorf("tape: replay of equation %d of block %d: %w", i, block, err)
		}
		r.data = t.captureForwardData(r.eq)
	}
	if !t.live[block] {
		t.live[block] = true
		for _, r := range t.blocks[block] {
			for _, dep := range r.eq.Dependencies() {
				t.refs.retain(dep.ID())
			}
		}
	}
	return nil
}

// Clear drops the captured forward data of the block, zeroes the contents of
// values produced in it, except ids listed in keep, and releases the
// references the block holds. Static values are never touched. The recorded
// structure is retained: a later Replay restores contents and references.
func (t *Tape) Clear(block int, keep map[uint64]bool) error {
	if block < 0 || block >= len(t.blocks) {
		return fmt.Errorf("%w: clear of block %d of %d", ErrInvalidState, block, len(t.blocks))
	}
	for _, r := range t.blocks[block] {
		r.data = nil
		for _, x := range r.eq.Outputs() {
			if keep[x.ID()] || x.IsStatic() {
				continue
			}
			x.Zero()
		}
	}
	if t.live[block] {
		t.live[block] = false
		for _, r := range t.blocks[block] {
			for _, dep := range r.eq.Dependencies() {
				t.refs.release(dep.ID())
			}
		}
	}
	return nil
}

// Producer returns the location of the equation producing the value, if
// any.
func (t *Tape) Producer(valueID uint64) (block, index int, ok bool) {
	p, ok := t.producers[valueID]
	return p.block, p.index, ok
}

// CheckpointSet returns the checkpointed values that must be stored to
// replay blocks from the given boundary onward: dependencies of equations in
// blocks >= block whose producer lies in an earlier block or outside the
// tape. Static and non-checkpointed values are excluded; the caller asserts
// they hold valid content at replay time.
func (t *Tape) CheckpointSet(block int) []value.Value {
	var out []value.Value
	seen := make(map[uint64]bool)
	for b := block; b < len(t.blocks); b++ {
		for _, r := range t.blocks[b] {
			for _, dep := range r.eq.Dependencies() {
				id := dep.ID()
				if seen[id] || !dep.IsCheckpointed() {
					continue
				}
				seen[id] = true
				if p, ok := t.producers[id]; ok && p.block >= block {
					continue
				}
				out = append(out, dep)
			}
		}
	}
	return out
}

// Refs returns the number of references live blocks hold on a value. Clear
// releases a block's references; Replay re-retains them.
func (t *Tape) Refs(valueID uint64) int { return t.refs.count(valueID) }

// Releasable reports whether no live block references the value: its
// contents are not pinned by retained forward state and may be freed or
// zeroed without invalidating a future replay from checkpoints.
func (t *Tape) Releasable(valueID uint64) bool { return t.refs.count(valueID) == 0 }

// Reset discards all recorded equations, forward data and references,
// returning the tape to a fresh recording state.
func (t *Tape) Reset() {
	t.blocks = [][]*recorded{nil}
	t.live = []bool{true}
	t.finalized = false
	t.refs = newRefTable()
	t.producers = make(map[uint64]position)
	t.snaps = value.NewSnapshotCache()
}
