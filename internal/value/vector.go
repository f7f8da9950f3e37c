package value

import (
	"fmt"
	"math"
)

// Vector is the dense in-memory Value implementation.
type Vector struct {
	id           uint64
	name         string
	data         []float64
	static       bool
	checkpointed bool
	caches       Caches
}

var _ Value = (*Vector)(nil)

// NewVector creates a zeroed vector of dimension n.
func NewVector(name string, n int) *Vector {
	return &Vector{
		id:           NextID(),
		name:         name,
		data:         make([]float64, n),
		checkpointed: true,
	}
}

// NewStaticVector creates a zeroed static vector. Static vectors hold
// non-differentiable reference data: they are never solved for, never
// cleared and never checkpointed.
func NewStaticVector(name string, n int) *Vector {
	v := NewVector(name, n)
	v.static = true
	v.checkpointed = false
	return v
}

// NewScalar creates a one-dimensional vector, used for functionals.
func NewScalar(name string) *Vector {
	return NewVector(name, 1)
}

// FromSlice creates a vector holding a copy of data.
func FromSlice(name string, data []float64) *Vector {
	v := NewVector(name, len(data))
	copy(v.data, data)
	return v
}

// ID returns the process-unique id.
func (v *Vector) ID() uint64 { return v.id }

// Name returns the vector name.
func (v *Vector) Name() string { return v.name }

// Len returns the vector dimension.
func (v *Vector) Len() int { return len(v.data) }

// IsStatic reports whether the vector holds static data.
func (v *Vector) IsStatic() bool { return v.static }

// IsCheckpointed reports whether checkpoints store this vector's content.
func (v *Vector) IsCheckpointed() bool { return v.checkpointed }

// SetCheckpointed marks the vector as stored or skipped by checkpoints. A
// skipped vector must hold valid content before any replay that consumes it.
func (v *Vector) SetCheckpointed(c bool) { v.checkpointed = c && !v.static }

// Caches returns the registry of cached derived data attached to the vector.
func (v *Vector) Caches() *Caches { return &v.caches }

// Zero sets every entry to zero.
func (v *Vector) Zero() {
	for i := range v.data {
		v.data[i] = 0
	}
	v.caches.Invalidate()
}

// IsZero reports whether every entry is exactly zero.
func (v *Vector) IsZero() bool {
	for _, e := range v.data {
		if e != 0 {
			return false
		}
	}
	return true
}

// Assign copies y into v.
func (v *Vector) Assign(y Value) error {
	if y.Len() != len(v.data) {
		return fmt.Errorf("%w: assign %q (%d) from %q (%d)", ErrSpaceMismatch, v.name, len(v.data), y.Name(), y.Len())
	}
	if w, ok := y.(*Vector); ok {
		copy(v.data, w.data)
		v.caches.Invalidate()
		return nil
	}
	return v.SetData(y.Data())
}

// Axpy computes v += alpha*y in place.
func (v *Vector) Axpy(alpha float64, y Value) error {
	if y.Len() != len(v.data) {
		return fmt.Errorf("%w: axpy into %q (%d) from %q (%d)", ErrSpaceMismatch, v.name, len(v.data), y.Name(), y.Len())
	}
	if w, ok := y.(*Vector); ok {
		for i, e := range w.data {
			v.data[i] += alpha * e
		}
		v.caches.Invalidate()
		return nil
	}
	for i, e := range y.Data() {
		v.data[i] += alpha * e
	}
	v.caches.Invalidate()
	return nil
}

// Inner returns the Euclidean inner product <v, y>.
func (v *Vector) Inner(y Value) (float64, error) {
	if y.Len() != len(v.data) {
		return 0, fmt.Errorf("%w: inner of %q (%d) with %q (%d)", ErrSpaceMismatch, v.name, len(v.data), y.Name(), y.Len())
	}
	var s float64
	if w, ok := y.(*Vector); ok {
		for i, e := range w.data {
			s += v.data[i] * e
		}
		return s, nil
	}
	for i, e := range y.Data() {
		s += v.data[i] * e
	}
	return s, nil
}

// Norm returns the Euclidean norm.
func (v *Vector) Norm() float64 {
	s, _ := v.Inner(v)
	return math.Sqrt(s)
}

// Dup returns a deep copy with a fresh id. The copy is never static.
func (v *Vector) Dup() Value {
	w := NewVector(v.name, len(v.data))
	copy(w.data, v.data)
	return w
}

// NewLike returns a zeroed vector in the same space with a fresh id.
func (v *Vector) NewLike() Value {
	return NewVector(v.name, len(v.data))
}

// Data returns a copy of the raw content.
func (v *Vector) Data() []float64 {
	out := make([]float64, len(v.data))
	copy(out, v.data)
	return out
}

// SetData overwrites the content from a raw snapshot.
func (v *Vector) SetData(data []float64) error {
	if len(data) != len(v.data) {
		return fmt.Errorf("%w: set %q (%d) from snapshot (%d)", ErrSpaceMismatch, v.name, len(v.data), len(data))
	}
	copy(v.data, data)
	v.caches.Invalidate()
	return nil
}

// At returns the entry at index i.
func (v *Vector) At(i int) float64 { return v.data[i] }

// Set sets the entry at index i.
func (v *Vector) Set(i int, x float64) {
	v.data[i] = x
	v.caches.Invalidate()
}

// Scalar returns the single entry of a one-dimensional vector.
func (v *Vector) Scalar() float64 { return v.data[0] }
