package equation

import (
	"fmt"

	"github.com/adjoint-ml/adjoint/internal/value"
)

// Pair is one scaled inner-product contribution alpha*<Y, Z>.
type Pair struct {
	Alpha float64
	Y     value.Value
	Z     value.Value
}

// InnerProductSum solves the scalar equation
//
//	x = sum_k alpha_k <y_k, z_k>,
//
// in residual form F = x - sum_k alpha_k <y_k, z_k>. The y_k and z_k are
// nonlinear dependencies: their values are needed for derivative actions.
type InnerProductSum struct {
	Base
	pairs []Pair
	// per pair, indices into Dependencies and NonlinearDependencies
	yDep, zDep []int
	yNl, zNl   []int
}

// NewInnerProductSum creates the scalar equation x = sum of pairs.
func NewInnerProductSum(x value.Value, pairs ...Pair) (*InnerProductSum, error) {
	if x.Len() != 1 {
		return nil, fmt.Errorf("equation: inner product solution %q must be scalar", x.Name())
	}
	deps := []value.Value{x}
	depIdx := map[uint64]int{x.ID(): 0}
	var nlDeps []value.Value
	nlIdx := map[uint64]int{}

	e := &InnerProductSum{
		pairs: append([]Pair(nil), pairs...),
		yDep:  make([]int, len(pairs)),
		zDep:  make([]int, len(pairs)),
		yNl:   make([]int, len(pairs)),
		zNl:   make([]int, len(pairs)),
	}
	add := func(v value.Value) (dep, nl int, err error) {
		if v.ID() == x.ID() {
			return 0, 0, fmt.Errorf("%w: %q appears on both sides", ErrDuplicateDependency, x.Name())
		}
		d, ok := depIdx[v.ID()]
		if !ok {
			d = len(deps)
			deps = append(deps, v)
			depIdx[v.ID()] = d
			nlIdx[v.ID()] = len(nlDeps)
			nlDeps = append(nlDeps, v)
		}
		return d, nlIdx[v.ID()], nil
	}
	for k, p := range pairs {
		var err error
		if e.yDep[k], e.yNl[k], err = add(p.Y); err != nil {
			return nil, err
		}
		if e.zDep[k], e.zNl[k], err = add(p.Z); err != nil {
			return nil, err
		}
	}
	b, err := NewBase([]value.Value{x}, deps, nlDeps)
	if err != nil {
		return nil, err
	}
	e.Base = b
	return e, nil
}

// NewInnerProduct creates the scalar equation x = alpha*<y, z>.
func NewInnerProduct(x value.Value, alpha float64, y, z value.Value) (*InnerProductSum, error) {
	return NewInnerProductSum(x, Pair{Alpha: alpha, Y: y, Z: z})
}

// NewNormSq creates the scalar equation x = <y, y>.
func NewNormSq(x, y value.Value) (*InnerProductSum, error) {
	return NewInnerProductSum(x, Pair{Alpha: 1, Y: y, Z: y})
}

// ForwardSolve evaluates the sum of inner products.
func (e *InnerProductSum) ForwardSolve(X []value.Value, deps []value.Value) error {
	d := e.depValues(deps)
	var s float64
	for k, p := range e.pairs {
		v, err := d[e.yDep[k]].Inner(d[e.zDep[k]])
		if err != nil {
			return err
		}
		s += p.Alpha * v
	}
	return X[0].SetData([]float64{s})
}

// AdjointDerivativeAction: dF/dx = 1; for a dependency d,
// dF/dd = -sum over pairs where d appears, of alpha times the partner.
func (e *InnerProductSum) AdjointDerivativeAction(nlDeps []value.Value, depIndex int, adjX []value.Value) (Action, error) {
	if depIndex == 0 {
		return Action{Scale: 1, Value: adjX[0]}, nil
	}
	if depIndex >= len(e.deps) {
		return Action{}, nil
	}
	lam := adjX[0].Data()[0]

	// Gather partner terms for this dependency. A single match avoids the
	// temporary.
	var single value.Value
	var singleAlpha float64
	var sum value.Value
	accumulate := func(alpha float64, partner value.Value) error {
		if single == nil && sum == nil {
			single, singleAlpha = partner, alpha
			return nil
		}
		if sum == nil {
			sum = single.NewLike()
			if err := sum.Axpy(singleAlpha, single); err != nil {
				return err
			}
			single = nil
		}
		return sum.Axpy(alpha, partner)
	}
	for k, p := range e.pairs {
		if e.yDep[k] == depIndex {
			if err := accumulate(p.Alpha, nlDeps[e.zNl[k]]); err != nil {
				return Action{}, err
			}
		}
		if e.zDep[k] == depIndex {
			if err := accumulate(p.Alpha, nlDeps[e.yNl[k]]); err != nil {
				return Action{}, err
			}
		}
	}
	switch {
	case sum != nil:
		return Action{Scale: -lam, Value: sum}, nil
	case single != nil:
		return Action{Scale: -lam * singleAlpha, Value: single}, nil
	}
	return Action{}, nil
}

// AdjointJacobianSolve is the identity solve.
func (e *InnerProductSum) AdjointJacobianSolve(_ []value.Value, b []value.Value) ([]value.Value, error) {
	return b, nil
}

// TangentLinear applies the product rule to every pair.
func (e *InnerProductSum) TangentLinear(m, _ []value.Value, tlm *TangentLinearMap) (Equation, error) {
	if err := e.checkTangentControls(m); err != nil {
		return nil, err
	}
	var pairs []Pair
	for _, p := range e.pairs {
		if tauY := tlm.Tangent(p.Y); tauY != nil {
			pairs = append(pairs, Pair{Alpha: p.Alpha, Y: tauY, Z: p.Z})
		}
		if tauZ := tlm.Tangent(p.Z); tauZ != nil {
			pairs = append(pairs, Pair{Alpha: p.Alpha, Y: p.Y, Z: tauZ})
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return NewInnerProductSum(tlm.Tangent(e.deps[0]), pairs...)
}
