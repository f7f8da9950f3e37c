package equation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/adjoint-ml/adjoint/internal/value"
)

// ErrFixedPointDivergence is returned when a fixed-point iteration (forward,
// tangent-linear or adjoint) exceeds its iteration bound or encounters NaN
// without meeting the tolerance. The solution values are left undefined.
var ErrFixedPointDivergence = errors.New("equation: fixed-point iteration diverged")

// FixedPointParameters control the convergence of the forward and derivative
// fixed-point iterations. AbsoluteTolerance and RelativeTolerance are
// required; the iteration stops when the solution change 2-norm drops below
// the tolerance.
type FixedPointParameters struct {
	AbsoluteTolerance   float64
	RelativeTolerance   float64
	MaxIterations       int  // default 1000
	NonzeroInitialGuess bool // default true
	Report              bool // log iteration progress via slog
}

func (p FixedPointParameters) withDefaults() (FixedPointParameters, error) {
	if p.AbsoluteTolerance <= 0 {
		return p, fmt.Errorf("equation: fixed point requires a positive absolute tolerance")
	}
	if p.RelativeTolerance < 0 {
		return p, fmt.Errorf("equation: fixed point requires a non-negative relative tolerance")
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = 1000
	}
	return p, nil
}

// DefaultFixedPointParameters returns parameters with the given tolerances,
// a nonzero initial guess and the default iteration bound.
func DefaultFixedPointParameters(absTol, relTol float64) FixedPointParameters {
	return FixedPointParameters{
		AbsoluteTolerance:   absTol,
		RelativeTolerance:   relTol,
		NonzeroInitialGuess: true,
	}
}

// FixedPoint iterates a sequence of inner equations to convergence. The last
// inner equation defines the fixed-point solution. Derivatives are not
// obtained by differentiating through every forward iteration: the
// tangent-linear solve iterates the linearized inner map to its own fixed
// point, and the adjoint solve iterates the adjoint of the linearized map
// (Gilbert 1992; Christianson 1994).
type FixedPoint struct {
	Base
	eqs    []Equation
	params FixedPointParameters

	initialGuessIndex int // index into deps, -1 when none

	// per inner equation, dependency indices into the outer dependency and
	// nonlinear dependency lists
	eqDepIdx [][]int
	eqNlIdx  [][]int
}

// intPair is one transpose-dependency entry: inner equation k consumes the
// tabulated solution at its dependency index j.
type intPair struct{ j, k int }
type intPairList = []intPair

// NewFixedPoint builds a fixed-point equation over eqs. Every inner equation
// must solve for a single, distinct value. initialGuess optionally seeds the
// solution; it requires NonzeroInitialGuess.
func NewFixedPoint(eqs []Equation, params FixedPointParameters, initialGuess value.Value) (*FixedPoint, error) {
	params, err := params.withDefaults()
	if err != nil {
		return nil, err
	}
	if len(eqs) == 0 {
		return nil, fmt.Errorf("equation: fixed point requires at least one inner equation")
	}
	xIDs := make(map[uint64]struct{}, len(eqs))
	outputs := make([]value.Value, len(eqs))
	for i, eq := range eqs {
		if len(eq.Outputs()) != 1 {
			return nil, fmt.Errorf("equation: fixed point inner equations must solve for exactly one value")
		}
		x := eq.Outputs()[0]
		if _, ok := xIDs[x.ID()]; ok {
			return nil, fmt.Errorf("%w: duplicate solve for %q", ErrDuplicateDependency, x.Name())
		}
		xIDs[x.ID()] = struct{}{}
		outputs[i] = x
	}
	x := outputs[len(outputs)-1]

	var deps []value.Value
	depIdx := map[uint64]int{}
	// Non-nil so that linear inner systems report no nonlinear
	// dependencies.
	nlDeps := []value.Value{}
	nlIdx := map[uint64]int{}

	initialGuessIndex := -1
	if params.NonzeroInitialGuess {
		if initialGuess != nil && initialGuess.ID() != x.ID() {
			initialGuessIndex = 0
			deps = append(deps, initialGuess)
			depIdx[initialGuess.ID()] = 0
		}
	} else if initialGuess != nil {
		return nil, fmt.Errorf("equation: initial guess provided, but NonzeroInitialGuess is false")
	}

	eqDepIdx := make([][]int, len(eqs))
	eqNlIdx := make([][]int, len(eqs))
	for i, eq := range eqs {
		for _, dep := range eq.Dependencies() {
			id := dep.ID()
			if _, ok := depIdx[id]; !ok {
				depIdx[id] = len(deps)
				deps = append(deps, dep)
			}
			eqDepIdx[i] = append(eqDepIdx[i], depIdx[id])
		}
		for _, dep := range eq.NonlinearDependencies() {
			id := dep.ID()
			if _, ok := nlIdx[id]; !ok {
				nlIdx[id] = len(nlDeps)
				nlDeps = append(nlDeps, dep)
			}
			eqNlIdx[i] = append(eqNlIdx[i], nlIdx[id])
		}
	}

	b, err := NewBase(outputs, deps, nlDeps)
	if err != nil {
		return nil, err
	}
	return &FixedPoint{
		Base:              b,
		eqs:               append([]Equation(nil), eqs...),
		params:            params,
		initialGuessIndex: initialGuessIndex,
		eqDepIdx:          eqDepIdx,
		eqNlIdx:           eqNlIdx,
	}, nil
}

// Equations returns the inner equations.
func (e *FixedPoint) Equations() []Equation { return e.eqs }

// ForwardSolve iterates the inner equations until the solution change meets
// the tolerance.
func (e *FixedPoint) ForwardSolve(X []value.Value, deps []value.Value) error {
	p := e.params
	x := X[len(X)-1]
	if p.NonzeroInitialGuess {
		if e.initialGuessIndex >= 0 {
			if err := x.Assign(e.depValues(deps)[e.initialGuessIndex]); err != nil {
				return err
			}
		}
	} else {
		x.Zero()
	}

	eqDeps := make([][]value.Value, len(e.eqs))
	if deps != nil {
		for i := range e.eqs {
			sub := make([]value.Value, len(e.eqDepIdx[i]))
			for j, k := range e.eqDepIdx[i] {
				sub[j] = deps[k]
			}
			eqDeps[i] = sub
		}
	}

	solve := func(it int) error {
		for i, eq := range e.eqs {
			if err := eq.ForwardSolve([]value.Value{X[i]}, eqDeps[i]); err != nil {
				return fmt.Errorf("fixed point iteration %d: %w", it, err)
			}
		}
		return nil
	}
	return e.iterate("forward", func() value.Value { return x }, solve)
}

// iterate runs the shared convergence loop: solve, measure the change in the
// solution, stop on tolerance, fail on NaN or the iteration bound. getX
// resolves the current solution value, which an adjoint sweep may replace
// between iterations.
func (e *FixedPoint) iterate(kind string, getX func() value.Value, solve func(it int) error) error {
	p := e.params
	x := getX()
	x0 := x.NewLike()
	if err := x0.Assign(x); err != nil {
		return err
	}
	tolSq := p.AbsoluteTolerance * p.AbsoluteTolerance
	for it := 1; ; it++ {
		if err := solve(it); err != nil {
			return err
		}
		x = getX()

		r := x0
		if err := r.Axpy(-1, x); err != nil {
			return err
		}
		rNormSq, err := r.Inner(r)
		if err != nil {
			return err
		}
		if p.Report {
			slog.Info("fixed point iteration",
				"kind", kind, "solution", x.Name(), "iteration", it,
				"change", math.Sqrt(rNormSq), "tolerance", math.Sqrt(tolSq))
		}
		if math.IsNaN(rNormSq) {
			return fmt.Errorf("%w: %s equation for %q: NaN after %d iteration(s)", ErrFixedPointDivergence, kind, x.Name(), it)
		}
		if rNormSq < tolSq || rNormSq == 0 {
			return nil
		}
		if it >= p.MaxIterations {
			return fmt.Errorf("%w: %s equation for %q: no convergence after %d iteration(s)", ErrFixedPointDivergence, kind, x.Name(), it)
		}
		if it == 1 {
			relSq := rNormSq * p.RelativeTolerance * p.RelativeTolerance
			if relSq > tolSq {
				tolSq = relSq
			}
		}
		if err := r.Assign(x); err != nil {
			return err
		}
		x0 = r
	}
}

// transposeDeps builds (lazily) the table of inner equations consuming each
// inner solution.
func (e *FixedPoint) transposeDeps() []intPairList {
	xIdx := make(map[uint64]int, len(e.eqs))
	for i, eq := range e.eqs {
		xIdx[eq.Outputs()[0].ID()] = i
	}
	tdeps := make([]intPairList, len(e.eqs))
	for i, eq := range e.eqs {
		for j, dep := range eq.Dependencies() {
			if k, ok := xIdx[dep.ID()]; ok && k != i {
				tdeps[k] = append(tdeps[k], intPair{j: j, k: i})
			}
		}
	}
	return tdeps
}

// AdjointJacobianSolve iterates the adjoint of the linearized inner map to
// its fixed point.
func (e *FixedPoint) AdjointJacobianSolve(nlDeps []value.Value, B []value.Value) ([]value.Value, error) {
	tdeps := e.transposeDeps()

	adjX := make([]value.Value, len(B))
	for i, b := range B {
		adjX[i] = b.Dup()
	}

	eqNlDeps := make([][]value.Value, len(e.eqs))
	for i := range e.eqs {
		sub := make([]value.Value, len(e.eqNlIdx[i]))
		for j, k := range e.eqNlIdx[i] {
			sub[j] = nlDeps[k]
		}
		eqNlDeps[i] = sub
	}

	n := len(e.eqs)
	solve := func(it int) error {
		// Sweep the inner equations once in reverse, starting from the
		// equation preceding the solution equation and wrapping around,
		// so the solution equation is updated last.
		for s := n - 1; s >= 0; s-- {
			i := ((s - 1) % n + n) % n
			if err := adjX[i].Assign(B[i]); err != nil {
				return err
			}
			for _, td := range tdeps[i] {
				sb, err := e.eqs[td.k].AdjointDerivativeAction(eqNlDeps[td.k], td.j, []value.Value{adjX[td.k]})
				if err != nil {
					return fmt.Errorf("adjoint fixed point iteration %d: %w", it, err)
				}
				if !sb.IsZero() {
					if err := adjX[i].Axpy(-sb.Scale, sb.Value); err != nil {
						return err
					}
				}
			}
			out, err := e.eqs[i].AdjointJacobianSolve(eqNlDeps[i], []value.Value{adjX[i]})
			if err != nil {
				return fmt.Errorf("adjoint fixed point iteration %d: %w", it, err)
			}
			adjX[i] = out[0]
		}
		return nil
	}
	if err := e.iterate("adjoint", func() value.Value { return adjX[n-1] }, solve); err != nil {
		return nil, err
	}
	return adjX, nil
}

// AdjointDerivativeAction accumulates, over the inner equations, the action
// with respect to the outer dependency at depIndex.
func (e *FixedPoint) AdjointDerivativeAction(nlDeps []value.Value, depIndex int, adjX []value.Value) (Action, error) {
	m := e.deps[depIndex]
	F := m.NewLike()
	for i, eq := range e.eqs {
		for j, dep := range eq.Dependencies() {
			if dep.ID() != m.ID() {
				continue
			}
			sub := make([]value.Value, len(e.eqNlIdx[i]))
			for a, k := range e.eqNlIdx[i] {
				sub[a] = nlDeps[k]
			}
			sb, err := eq.AdjointDerivativeAction(sub, j, []value.Value{adjX[i]})
			if err != nil {
				return Action{}, err
			}
			if !sb.IsZero() {
				if err := F.Axpy(-sb.Scale, sb.Value); err != nil {
					return Action{}, err
				}
			}
		}
	}
	return Action{Scale: -1, Value: F}, nil
}

// TangentLinear returns a fixed point over the inner tangent-linear
// equations.
func (e *FixedPoint) TangentLinear(m, dm []value.Value, tlm *TangentLinearMap) (Equation, error) {
	if err := e.checkTangentControls(m); err != nil {
		return nil, err
	}
	tlmEqs := make([]Equation, len(e.eqs))
	for i, eq := range e.eqs {
		teq, err := eq.TangentLinear(m, dm, tlm)
		if err != nil {
			return nil, err
		}
		if teq == nil {
			// No tangent flows through this inner equation: its
			// tangent solution is zero.
			teq, err = NewNull(tlm.Tangent(eq.Outputs()[0]))
			if err != nil {
				return nil, err
			}
		}
		tlmEqs[i] = teq
	}
	var guess value.Value
	if e.initialGuessIndex >= 0 {
		guess = tlm.Tangent(e.deps[e.initialGuessIndex])
	}
	return NewFixedPoint(tlmEqs, e.params, guess)
}
