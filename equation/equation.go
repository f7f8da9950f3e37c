// Copyright 2026 The Adjoint Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package equation provides the equation types recorded on the tape.
//
// Equations are stated in residual form F(X, y_0, y_1, ...) = 0 and carry
// their own derivative capabilities: forward solve, adjoint derivative
// action, adjoint Jacobian solve and tangent-linear derivation.
//
// Example:
//
//	x := value.NewScalar("x")
//	eq, err := equation.NewInnerProduct(x, 1, y, z) // x = <y, z>
package equation

import (
	"github.com/adjoint-ml/adjoint/internal/equation"
	"github.com/adjoint-ml/adjoint/internal/value"
)

// Equation is the abstract equation capability.
type Equation = equation.Equation

// Action is an adjoint derivative contribution.
type Action = equation.Action

// TangentLinearMap associates forward values with their tangents for one
// perturbation direction.
type TangentLinearMap = equation.TangentLinearMap

// Term is one scaled contribution to a linear combination.
type Term = equation.Term

// Pair is one scaled inner-product contribution.
type Pair = equation.Pair

// FixedPoint iterates inner equations to convergence and differentiates
// through the converged solution.
type FixedPoint = equation.FixedPoint

// FixedPointParameters control fixed-point convergence.
type FixedPointParameters = equation.FixedPointParameters

// Construction and evaluation errors.
var (
	ErrDuplicateDependency  = equation.ErrDuplicateDependency
	ErrStaticOutput         = equation.ErrStaticOutput
	ErrOutputNotDependency  = equation.ErrOutputNotDependency
	ErrInvalidTangent       = equation.ErrInvalidTangent
	ErrFixedPointDivergence = equation.ErrFixedPointDivergence
)

// NewNull creates the equation x = 0.
func NewNull(x value.Value) (Equation, error) {
	return equation.NewNull(x)
}

// NewAssignment creates the equation x = y.
func NewAssignment(x, y value.Value) (Equation, error) {
	return equation.NewAssignment(x, y)
}

// NewLinearCombination creates the equation x = sum of terms.
func NewLinearCombination(x value.Value, terms ...Term) (Equation, error) {
	return equation.NewLinearCombination(x, terms...)
}

// NewScale creates the equation x = alpha*y.
func NewScale(x value.Value, alpha float64, y value.Value) (Equation, error) {
	return equation.NewScale(x, alpha, y)
}

// NewAxpy creates the equation xNew = xOld + alpha*y.
func NewAxpy(xNew, xOld value.Value, alpha float64, y value.Value) (Equation, error) {
	return equation.NewAxpy(xNew, xOld, alpha, y)
}

// NewInnerProductSum creates the scalar equation x = sum_k alpha_k <y_k, z_k>.
func NewInnerProductSum(x value.Value, pairs ...Pair) (Equation, error) {
	return equation.NewInnerProductSum(x, pairs...)
}

// NewInnerProduct creates the scalar equation x = alpha*<y, z>.
func NewInnerProduct(x value.Value, alpha float64, y, z value.Value) (Equation, error) {
	return equation.NewInnerProduct(x, alpha, y, z)
}

// NewNormSq creates the scalar equation x = <y, y>.
func NewNormSq(x, y value.Value) (Equation, error) {
	return equation.NewNormSq(x, y)
}

// NewFixedPoint builds a fixed-point equation over inner equations. The last
// inner equation defines the solution; initialGuess may be nil.
func NewFixedPoint(eqs []Equation, params FixedPointParameters, initialGuess value.Value) (*FixedPoint, error) {
	return equation.NewFixedPoint(eqs, params, initialGuess)
}

// DefaultFixedPointParameters returns parameters with the given tolerances
// and the default iteration bound.
func DefaultFixedPointParameters(absTol, relTol float64) FixedPointParameters {
	return equation.DefaultFixedPointParameters(absTol, relTol)
}
