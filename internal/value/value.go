// Package value defines the abstract numeric container used by equations and
// the adjoint engine.
//
// A Value is an opaque, mutable container with a process-unique identity.
// The core never inspects Value contents beyond the capability interface:
// it duplicates, zeroes, accumulates (axpy) and snapshots them. Concrete
// numeric backends (finite-element functions, distributed vectors) implement
// this interface; the dense Vector implementation in this package is the one
// used by the engine tests.
package value

import (
	"errors"
	"sync/atomic"
)

// ErrSpaceMismatch is returned when two values from incompatible spaces are
// combined.
var ErrSpaceMismatch = errors.New("value: space mismatch")

// idCounter allocates process-unique, allocation-ordered value ids.
// Allocation order matters: the tape uses id order for cheap
// producer-precedes-consumer checks.
var idCounter atomic.Uint64

// NextID returns a fresh value id. Exposed for external Value
// implementations.
func NextID() uint64 {
	return idCounter.Add(1)
}

// Value is the abstract mutable numeric container.
//
// Mutation happens only through an owning equation's forward solve or
// through the engine during derivative reconstruction. Two Values never
// alias the same storage; Dup always deep-copies.
type Value interface {
	// ID returns the process-unique identity of this value.
	ID() uint64

	// Name returns a human-readable name, used in error and report output.
	Name() string

	// Len returns the dimension of the space the value lives in. Values
	// are compatible when their lengths agree.
	Len() int

	// IsStatic reports whether the value is static: set before recording
	// starts, never solved for, never cleared, and excluded from
	// checkpoints.
	IsStatic() bool

	// IsCheckpointed reports whether checkpoints store this value's
	// content. A non-checkpointed value must hold valid content before any
	// replay that consumes it; static values are never checkpointed.
	IsCheckpointed() bool

	// Caches returns the registry of cached derived data attached to this
	// value. Any mutation invalidates every attached entry.
	Caches() *Caches

	// Zero sets the value to zero.
	Zero()

	// IsZero reports whether every entry is exactly zero. Used to skip
	// vacuous adjoint accumulations.
	IsZero() bool

	// Assign copies the content of y into the receiver.
	Assign(y Value) error

	// Axpy adds alpha*y into the receiver in place.
	Axpy(alpha float64, y Value) error

	// Inner returns the inner product with y.
	Inner(y Value) (float64, error)

	// Dup returns a deep copy with a fresh id.
	Dup() Value

	// NewLike returns a zeroed value in the same space with a fresh id.
	NewLike() Value

	// Data returns a copy of the raw content. Used by checkpoint stores.
	Data() []float64

	// SetData overwrites the content from a raw snapshot.
	SetData(data []float64) error
}
