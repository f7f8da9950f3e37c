// Package equation defines the abstract equation capability and the built-in
// equation kinds.
//
// An equation is expressed in residual form
//
//	F ( X, y_0, y_1, ... ) = 0,
//
// where X is the equation solution and the y_i are dependencies. Each kind
// implements the Equation interface, which provides:
//   - Forward solve: sets the solution values.
//   - Adjoint derivative action: the action of (dF/dy_i)^T on the adjoint
//     solution, used to assemble adjoint right-hand sides.
//   - Adjoint Jacobian solve: solves (dF/dX)^T lambda = b.
//   - Tangent linear: derives the associated tangent-linear equation.
//
// Built-in kinds:
//   - Null: x = 0
//   - Assignment: x = y
//   - LinearCombination: x = sum_i alpha_i y_i (with Scale and Axpy forms)
//   - InnerProduct / NormSq: scalar functional assembly
//   - FixedPoint: inner equations iterated to convergence
package equation

import (
	"errors"

	"github.com/adjoint-ml/adjoint/internal/value"
)

// Construction and evaluation errors.
var (
	ErrDuplicateDependency = errors.New("equation: duplicate dependency")
	ErrStaticOutput        = errors.New("equation: solution cannot be static")
	ErrOutputNotDependency = errors.New("equation: solution must be a dependency")
	ErrInvalidTangent      = errors.New("equation: tangent-linear parameter is a solution")
)

// Action is an adjoint derivative contribution: Scale times Value. The zero
// Action means no contribution. The receiver of an Action must treat Value
// as read-only.
type Action struct {
	Scale float64
	Value value.Value
}

// IsZero reports whether the action carries no contribution.
func (a Action) IsZero() bool { return a.Value == nil }

// Equation is the abstract equation capability recorded on the tape.
//
// Forward solves must be deterministic given identical dependency values;
// replay correctness depends on it.
type Equation interface {
	// Outputs returns the solution values. The tape enforces that a value
	// has at most one live producing equation.
	Outputs() []value.Value

	// Dependencies returns the ordered dependency values, which include
	// the outputs.
	Dependencies() []value.Value

	// NonlinearDependencies returns the dependencies whose values are
	// required to evaluate derivative actions. Only these are captured as
	// forward data and checkpointed.
	NonlinearDependencies() []value.Value

	// NonlinearDependencyIndices maps each nonlinear dependency to its
	// index in Dependencies.
	NonlinearDependencyIndices() []int

	// ForwardSolve sets the solution values X. When deps is nil the
	// recorded dependency values are used; otherwise deps supplies the
	// dependency values in Dependencies order.
	ForwardSolve(X []value.Value, deps []value.Value) error

	// AdjointDerivativeAction returns the action of the adjoint of the
	// derivative of F with respect to dependency depIndex, applied to the
	// adjoint solution adjX. nlDeps supplies the nonlinear dependency
	// values in NonlinearDependencies order.
	AdjointDerivativeAction(nlDeps []value.Value, depIndex int, adjX []value.Value) (Action, error)

	// AdjointJacobianSolve solves the adjoint equation
	// (dF/dX)^T lambda = b, returning lambda. b may be mutated and
	// returned directly.
	AdjointJacobianSolve(nlDeps []value.Value, b []value.Value) ([]value.Value, error)

	// TangentLinear returns the tangent-linear equation for the direction
	// defined by controls m and perturbations dm, or nil when no tangent
	// flows through this equation.
	TangentLinear(m, dm []value.Value, tlm *TangentLinearMap) (Equation, error)
}
