package engine

import (
	"errors"

	"github.com/adjoint-ml/adjoint/internal/equation"
	"github.com/adjoint-ml/adjoint/internal/value"
)

// ErrUnassigned is returned when a functional's value is read before any
// assignment.
var ErrUnassigned = errors.New("engine: functional has not been assigned")

// Functional assembles a scalar quantity of interest from inner products.
// Every assembly step is a recorded equation, so the functional is
// differentiable like any other solved value. Each step produces a fresh
// scalar; Variable returns the current one.
type Functional struct {
	man  *Manager
	name string
	x    value.Value
}

// NewFunctional creates an unassigned functional.
func NewFunctional(man *Manager, name string) *Functional {
	return &Functional{man: man, name: name}
}

// Name returns the functional name.
func (f *Functional) Name() string { return f.name }

// Assign sets the functional to sum_k alpha_k <y_k, z_k>, discarding any
// previous assembly.
func (f *Functional) Assign(pairs ...equation.Pair) error {
	x := value.NewScalar(f.name)
	eq, err := equation.NewInnerProductSum(x, pairs...)
	if err != nil {
		return err
	}
	if err := f.man.Solve(eq); err != nil {
		return err
	}
	f.x = x
	return nil
}

// AddTo adds sum_k alpha_k <y_k, z_k> to the functional. An unassigned
// functional starts from zero.
func (f *Functional) AddTo(pairs ...equation.Pair) error {
	if f.x == nil {
		return f.Assign(pairs...)
	}
	term := value.NewScalar(f.name)
	eq, err := equation.NewInnerProductSum(term, pairs...)
	if err != nil {
		return err
	}
	if err := f.man.Solve(eq); err != nil {
		return err
	}

	sum := value.NewScalar(f.name)
	add, err := equation.NewLinearCombination(sum,
		equation.Term{Alpha: 1, Y: f.x},
		equation.Term{Alpha: 1, Y: term},
	)
	if err != nil {
		return err
	}
	if err := f.man.Solve(add); err != nil {
		return err
	}
	f.x = sum
	return nil
}

// Variable returns the scalar value currently holding the functional, or
// nil when unassigned.
func (f *Functional) Variable() value.Value { return f.x }

// Value returns the assembled scalar.
func (f *Functional) Value() (float64, error) {
	if f.x == nil {
		return 0, ErrUnassigned
	}
	return f.x.Data()[0], nil
}
