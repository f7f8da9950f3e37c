package equation

import (
	"fmt"

	"github.com/adjoint-ml/adjoint/internal/value"
)

// Null solves x = 0. It has no nonlinear dependencies, so nothing is
// captured for it during checkpointing.
type Null struct {
	Base
}

// NewNull creates the equation x = 0.
func NewNull(x value.Value) (*Null, error) {
	b, err := NewBase([]value.Value{x}, []value.Value{x}, []value.Value{})
	if err != nil {
		return nil, err
	}
	return &Null{Base: b}, nil
}

// ForwardSolve zeroes the solution.
func (e *Null) ForwardSolve(X []value.Value, _ []value.Value) error {
	X[0].Zero()
	return nil
}

// AdjointDerivativeAction returns the identity action for the solution.
func (e *Null) AdjointDerivativeAction(_ []value.Value, depIndex int, adjX []value.Value) (Action, error) {
	if depIndex == 0 {
		return Action{Scale: 1, Value: adjX[0]}, nil
	}
	return Action{}, nil
}

// AdjointJacobianSolve is the identity solve.
func (e *Null) AdjointJacobianSolve(_ []value.Value, b []value.Value) ([]value.Value, error) {
	return b, nil
}

// TangentLinear: the tangent of a zeroed value is zero, so no tangent
// equation is needed.
func (e *Null) TangentLinear(m, _ []value.Value, _ *TangentLinearMap) (Equation, error) {
	if err := e.checkTangentControls(m); err != nil {
		return nil, err
	}
	return nil, nil
}

// Assignment solves x = y, in residual form F = x - y.
type Assignment struct {
	Base
}

// NewAssignment creates the equation x = y.
func NewAssignment(x, y value.Value) (*Assignment, error) {
	if x.ID() == y.ID() {
		return nil, fmt.Errorf("%w: assignment of %q to itself", ErrDuplicateDependency, x.Name())
	}
	b, err := NewBase([]value.Value{x}, []value.Value{x, y}, []value.Value{})
	if err != nil {
		return nil, err
	}
	return &Assignment{Base: b}, nil
}

// ForwardSolve copies y into x.
func (e *Assignment) ForwardSolve(X []value.Value, deps []value.Value) error {
	d := e.depValues(deps)
	return X[0].Assign(d[1])
}

// AdjointDerivativeAction: dF/dx = I, dF/dy = -I.
func (e *Assignment) AdjointDerivativeAction(_ []value.Value, depIndex int, adjX []value.Value) (Action, error) {
	switch depIndex {
	case 0:
		return Action{Scale: 1, Value: adjX[0]}, nil
	case 1:
		return Action{Scale: -1, Value: adjX[0]}, nil
	}
	return Action{}, nil
}

// AdjointJacobianSolve is the identity solve.
func (e *Assignment) AdjointJacobianSolve(_ []value.Value, b []value.Value) ([]value.Value, error) {
	return b, nil
}

// TangentLinear returns tau_x = tau_y.
func (e *Assignment) TangentLinear(m, _ []value.Value, tlm *TangentLinearMap) (Equation, error) {
	if err := e.checkTangentControls(m); err != nil {
		return nil, err
	}
	x, y := e.deps[0], e.deps[1]
	tauY := tlm.Tangent(y)
	if tauY == nil {
		return nil, nil
	}
	return NewAssignment(tlm.Tangent(x), tauY)
}
