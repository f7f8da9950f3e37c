package equation

import (
	"fmt"

	"github.com/adjoint-ml/adjoint/internal/value"
)

// Base carries the dependency bookkeeping shared by all equation kinds.
// Construct with NewBase, then embed.
type Base struct {
	outputs []value.Value
	deps    []value.Value
	nlDeps  []value.Value // nil means all dependencies are nonlinear
	nlIdx   []int
}

// NewBase validates and builds the shared dependency bookkeeping.
//
// Every output must be a non-static member of deps. nlDeps, when non-nil,
// must be a duplicate-free subset of deps; nil means every dependency is
// treated as nonlinear.
func NewBase(outputs, deps, nlDeps []value.Value) (Base, error) {
	depIdx := make(map[uint64]int, len(deps))
	for i, dep := range deps {
		if _, ok := depIdx[dep.ID()]; ok {
			return Base{}, fmt.Errorf("%w: %q", ErrDuplicateDependency, dep.Name())
		}
		depIdx[dep.ID()] = i
	}
	for _, x := range outputs {
		if x.IsStatic() {
			return Base{}, fmt.Errorf("%w: %q", ErrStaticOutput, x.Name())
		}
		if _, ok := depIdx[x.ID()]; !ok {
			return Base{}, fmt.Errorf("%w: %q", ErrOutputNotDependency, x.Name())
		}
	}

	b := Base{
		outputs: append([]value.Value(nil), outputs...),
		deps:    append([]value.Value(nil), deps...),
	}
	if nlDeps == nil {
		b.nlIdx = make([]int, len(deps))
		for i := range deps {
			b.nlIdx[i] = i
		}
		return b, nil
	}

	seen := make(map[uint64]struct{}, len(nlDeps))
	// Non-nil even when empty: nil means "all dependencies".
	b.nlDeps = make([]value.Value, 0, len(nlDeps))
	b.nlDeps = append(b.nlDeps, nlDeps...)
	b.nlIdx = make([]int, len(nlDeps))
	for i, dep := range nlDeps {
		if _, ok := seen[dep.ID()]; ok {
			return Base{}, fmt.Errorf("%w: nonlinear %q", ErrDuplicateDependency, dep.Name())
		}
		seen[dep.ID()] = struct{}{}
		j, ok := depIdx[dep.ID()]
		if !ok {
			return Base{}, fmt.Errorf("equation: nonlinear dependency %q is not a dependency", dep.Name())
		}
		b.nlIdx[i] = j
	}
	return b, nil
}

// Outputs returns the solution values.
func (b *Base) Outputs() []value.Value { return b.outputs }

// Output returns the solution when the equation solves for exactly one
// value.
func (b *Base) Output() value.Value { return b.outputs[0] }

// Dependencies returns the ordered dependencies.
func (b *Base) Dependencies() []value.Value { return b.deps }

// NonlinearDependencies returns the nonlinear dependency subset.
func (b *Base) NonlinearDependencies() []value.Value {
	if b.nlDeps == nil {
		return b.deps
	}
	return b.nlDeps
}

// NonlinearDependencyIndices maps nonlinear dependencies to dependency
// indices.
func (b *Base) NonlinearDependencyIndices() []int { return b.nlIdx }

// depValues resolves the dependency values: the recorded ones when deps is
// nil, the supplied override otherwise.
func (b *Base) depValues(deps []value.Value) []value.Value {
	if deps == nil {
		return b.deps
	}
	return deps
}

// checkTangentControls rejects directions that perturb a solution of this
// equation: the tangent of a solved value is derived, never seeded.
func (b *Base) checkTangentControls(m []value.Value) error {
	for _, c := range m {
		for _, x := range b.outputs {
			if c.ID() == x.ID() {
				return fmt.Errorf("%w: %q", ErrInvalidTangent, c.Name())
			}
		}
	}
	return nil
}
