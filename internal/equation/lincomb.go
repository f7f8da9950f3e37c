package equation

import (
	"fmt"

	"github.com/adjoint-ml/adjoint/internal/value"
)

// Term is one scaled contribution to a linear combination.
type Term struct {
	Alpha float64
	Y     value.Value
}

// LinearCombination solves x = sum_i alpha_i y_i, in residual form
// F = x - sum_i alpha_i y_i. The equation is linear: it has no nonlinear
// dependencies.
type LinearCombination struct {
	Base
	alpha []float64
}

// NewLinearCombination creates the equation x = sum of terms.
func NewLinearCombination(x value.Value, terms ...Term) (*LinearCombination, error) {
	deps := make([]value.Value, 0, len(terms)+1)
	deps = append(deps, x)
	alpha := make([]float64, len(terms))
	for i, term := range terms {
		if term.Y.ID() == x.ID() {
			return nil, fmt.Errorf("%w: %q appears on both sides", ErrDuplicateDependency, x.Name())
		}
		deps = append(deps, term.Y)
		alpha[i] = term.Alpha
	}
	b, err := NewBase([]value.Value{x}, deps, []value.Value{})
	if err != nil {
		return nil, err
	}
	return &LinearCombination{Base: b, alpha: alpha}, nil
}

// NewScale creates the equation x = alpha*y.
func NewScale(x value.Value, alpha float64, y value.Value) (*LinearCombination, error) {
	return NewLinearCombination(x, Term{Alpha: alpha, Y: y})
}

// NewAxpy creates the equation xNew = xOld + alpha*y.
func NewAxpy(xNew, xOld value.Value, alpha float64, y value.Value) (*LinearCombination, error) {
	return NewLinearCombination(xNew, Term{Alpha: 1, Y: xOld}, Term{Alpha: alpha, Y: y})
}

// ForwardSolve accumulates the combination into x.
func (e *LinearCombination) ForwardSolve(X []value.Value, deps []value.Value) error {
	d := e.depValues(deps)
	x := X[0]
	x.Zero()
	for i, alpha := range e.alpha {
		if err := x.Axpy(alpha, d[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// AdjointDerivativeAction: dF/dx = I, dF/dy_i = -alpha_i I.
func (e *LinearCombination) AdjointDerivativeAction(_ []value.Value, depIndex int, adjX []value.Value) (Action, error) {
	if depIndex == 0 {
		return Action{Scale: 1, Value: adjX[0]}, nil
	}
	if depIndex <= len(e.alpha) {
		return Action{Scale: -e.alpha[depIndex-1], Value: adjX[0]}, nil
	}
	return Action{}, nil
}

// AdjointJacobianSolve is the identity solve.
func (e *LinearCombination) AdjointJacobianSolve(_ []value.Value, b []value.Value) ([]value.Value, error) {
	return b, nil
}

// TangentLinear returns the combination of the dependency tangents.
func (e *LinearCombination) TangentLinear(m, _ []value.Value, tlm *TangentLinearMap) (Equation, error) {
	if err := e.checkTangentControls(m); err != nil {
		return nil, err
	}
	x := e.deps[0]
	var terms []Term
	for i, alpha := range e.alpha {
		tauY := tlm.Tangent(e.deps[i+1])
		if tauY == nil {
			continue
		}
		terms = append(terms, Term{Alpha: alpha, Y: tauY})
	}
	if len(terms) == 0 {
		return nil, nil
	}
	return NewLinearCombination(tlm.Tangent(x), terms...)
}
