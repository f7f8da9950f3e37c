// Copyright 2026 The Adjoint Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package value provides the differentiable value types.
//
// A Value is a named, fixed-dimension quantity with a process-unique
// identity. Equations solve for values, tangents and adjoints live in the
// same space as their primal value, and checkpoints snapshot value contents.
//
// Example:
//
//	u := value.FromSlice("u", []float64{1, 2, 3})
//	kappa := value.NewStaticVector("kappa", 1) // non-differentiable data
package value

import (
	"github.com/adjoint-ml/adjoint/internal/value"
)

// Value is a quantity an equation can depend on or solve for.
type Value = value.Value

// Vector is the dense in-memory Value implementation.
type Vector = value.Vector

// Caches is the registry of cached derived data attached to a value.
type Caches = value.Caches

// CacheRef is the invalidation handle of one cached item.
type CacheRef = value.CacheRef

// SnapshotCache shares duplicates of values across repeated captures.
type SnapshotCache = value.SnapshotCache

// ErrSpaceMismatch is returned when values of different dimensions are
// combined.
var ErrSpaceMismatch = value.ErrSpaceMismatch

// NewVector creates a zeroed vector of dimension n.
func NewVector(name string, n int) *Vector {
	return value.NewVector(name, n)
}

// NewStaticVector creates a zeroed static vector. Static values hold
// non-differentiable reference data: they are never solved for, never
// cleared and never checkpointed.
func NewStaticVector(name string, n int) *Vector {
	return value.NewStaticVector(name, n)
}

// NewScalar creates a one-dimensional vector, used for functionals.
func NewScalar(name string) *Vector {
	return value.NewScalar(name)
}

// FromSlice creates a vector holding a copy of data.
func FromSlice(name string, data []float64) *Vector {
	return value.FromSlice(name, data)
}

// NewSnapshotCache creates an empty snapshot cache.
func NewSnapshotCache() *SnapshotCache {
	return value.NewSnapshotCache()
}
