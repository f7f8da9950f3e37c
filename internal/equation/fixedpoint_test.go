package equation

import (
	"errors"
	"math"
	"testing"

	"github.com/adjoint-ml/adjoint/internal/value"
)

// countingEquation wraps an equation and counts its forward solves.
type countingEquation struct {
	Equation
	calls int
}

func (c *countingEquation) ForwardSolve(X, deps []value.Value) error {
	c.calls++
	return c.Equation.ForwardSolve(X, deps)
}

// contraction builds the system y = a*x + b, x = y, whose fixed point is
// x* = b/(1-a).
func contraction(t *testing.T, a float64, b value.Value) (*FixedPoint, *value.Vector) {
	t.Helper()
	x := value.NewScalar("x")
	y := value.NewScalar("y")
	e1, err := NewLinearCombination(y, Term{Alpha: a, Y: x}, Term{Alpha: 1, Y: b})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := NewAssignment(x, y)
	if err != nil {
		t.Fatal(err)
	}
	fp, err := NewFixedPoint([]Equation{e1, e2}, DefaultFixedPointParameters(1e-14, 1e-14), nil)
	if err != nil {
		t.Fatal(err)
	}
	return fp, x
}

func TestFixedPointForward(t *testing.T) {
	b := value.FromSlice("b", []float64{3})
	fp, x := contraction(t, 0.5, b)
	solve(t, fp)
	if !almostEqual(x.Scalar(), 6, 1e-12) {
		t.Fatalf("x = %v, want 6", x.Scalar())
	}
}

func TestFixedPointMatchesUnrolledIteration(t *testing.T) {
	const a, b0 = 0.8, 1.5
	b := value.FromSlice("b", []float64{b0})
	fp, x := contraction(t, a, b)
	solve(t, fp)

	u := 0.0
	for i := 0; i < 10000; i++ {
		u = a*u + b0
	}
	if !almostEqual(x.Scalar(), u, 1e-10) {
		t.Fatalf("x = %v, unrolled %v", x.Scalar(), u)
	}
}

func TestFixedPointConvergenceRate(t *testing.T) {
	// Powers of two keep the iterates exact: from x_0 = 0 the change after
	// iteration k is exactly a^{k-1} b0, so the iteration count matches
	// the contraction-rate prediction without tolerance slack.
	const (
		a    = 0.5
		b0   = 3.0
		atol = 1e-10
	)
	b := value.FromSlice("b", []float64{b0})
	x := value.NewScalar("x")
	y := value.NewScalar("y")
	e1, err := NewLinearCombination(y, Term{Alpha: a, Y: x}, Term{Alpha: 1, Y: b})
	if err != nil {
		t.Fatal(err)
	}
	counting := &countingEquation{Equation: e1}
	e2, err := NewAssignment(x, y)
	if err != nil {
		t.Fatal(err)
	}
	fp, err := NewFixedPoint([]Equation{counting, e2}, DefaultFixedPointParameters(atol, 0), nil)
	if err != nil {
		t.Fatal(err)
	}
	solve(t, fp)

	predicted := int(math.Ceil(math.Log(atol/b0)/math.Log(a))) + 1
	if counting.calls != predicted {
		t.Fatalf("converged after %d iterations, predicted %d", counting.calls, predicted)
	}
	if !almostEqual(x.Scalar(), b0/(1-a), atol) {
		t.Fatalf("x = %v, want %v", x.Scalar(), b0/(1-a))
	}
}

func TestFixedPointInitialGuess(t *testing.T) {
	b := value.FromSlice("b", []float64{3})
	guess := value.FromSlice("guess", []float64{5.9})

	x := value.NewScalar("x")
	y := value.NewScalar("y")
	e1, err := NewLinearCombination(y, Term{Alpha: 0.5, Y: x}, Term{Alpha: 1, Y: b})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := NewAssignment(x, y)
	if err != nil {
		t.Fatal(err)
	}
	fp, err := NewFixedPoint([]Equation{e1, e2}, DefaultFixedPointParameters(1e-14, 1e-14), guess)
	if err != nil {
		t.Fatal(err)
	}
	solve(t, fp)
	if !almostEqual(x.Scalar(), 6, 1e-12) {
		t.Fatalf("x = %v, want 6", x.Scalar())
	}

	// An initial guess requires a nonzero initial guess policy.
	params := DefaultFixedPointParameters(1e-14, 1e-14)
	params.NonzeroInitialGuess = false
	if _, err := NewFixedPoint([]Equation{e1, e2}, params, guess); err == nil {
		t.Fatal("initial guess accepted with zero initial guess policy")
	}
}

func TestFixedPointDivergence(t *testing.T) {
	b := value.FromSlice("b", []float64{1})
	x := value.NewScalar("x")
	y := value.NewScalar("y")
	// An expansion: |a| > 1 never converges.
	e1, err := NewLinearCombination(y, Term{Alpha: 2, Y: x}, Term{Alpha: 1, Y: b})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := NewAssignment(x, y)
	if err != nil {
		t.Fatal(err)
	}
	params := DefaultFixedPointParameters(1e-12, 0)
	params.MaxIterations = 50
	fp, err := NewFixedPoint([]Equation{e1, e2}, params, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fp.ForwardSolve(fp.Outputs(), nil); !errors.Is(err, ErrFixedPointDivergence) {
		t.Fatalf("expansion converged: %v", err)
	}
}

func TestFixedPointParameterValidation(t *testing.T) {
	x := value.NewScalar("x")
	eq, err := NewNull(x)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewFixedPoint([]Equation{eq}, FixedPointParameters{}, nil); err == nil {
		t.Fatal("zero absolute tolerance accepted")
	}
	if _, err := NewFixedPoint(nil, DefaultFixedPointParameters(1e-12, 0), nil); err == nil {
		t.Fatal("empty equation list accepted")
	}
}

func TestFixedPointAdjointJacobianSolve(t *testing.T) {
	const a = 0.5
	b := value.FromSlice("b", []float64{3})
	fp, _ := contraction(t, a, b)
	solve(t, fp)

	// For F_1 = y - a x - b, F_2 = x - y the transposed Jacobian system
	// with right-hand side (0, 1) has solution lambda = 1/(1-a) in both
	// components.
	B := []value.Value{
		value.FromSlice("b1", []float64{0}),
		value.FromSlice("b2", []float64{1}),
	}
	lam, err := fp.AdjointJacobianSolve(fp.NonlinearDependencies(), B)
	if err != nil {
		t.Fatal(err)
	}
	want := 1 / (1 - a)
	for i, l := range lam {
		if !almostEqual(l.Data()[0], want, 1e-10) {
			t.Fatalf("lambda[%d] = %v, want %v", i, l.Data()[0], want)
		}
	}
}

func TestFixedPointTangentLinear(t *testing.T) {
	const a = 0.5
	b := value.FromSlice("b", []float64{3})
	db := value.FromSlice("db", []float64{1})
	fp, x := contraction(t, a, b)
	solve(t, fp)

	tlm := NewTangentLinearMap([]value.Value{b}, []value.Value{db})
	teq, err := fp.TangentLinear([]value.Value{b}, []value.Value{db}, tlm)
	if err != nil {
		t.Fatal(err)
	}
	if teq == nil {
		t.Fatal("no tangent equation")
	}
	solve(t, teq)

	tau, ok := tlm.Lookup(x)
	if !ok {
		t.Fatal("no tangent for the fixed point solution")
	}
	// dx*/db = 1/(1-a) = 2.
	if !almostEqual(tau.Data()[0], 2, 1e-10) {
		t.Fatalf("tau_x = %v, want 2", tau.Data()[0])
	}
}
