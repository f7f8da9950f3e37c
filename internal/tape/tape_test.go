package tape

import (
	"errors"
	"testing"

	"github.com/adjoint-ml/adjoint/internal/equation"
	"github.com/adjoint-ml/adjoint/internal/value"
)

func record(t *testing.T, tp *Tape, eq equation.Equation) {
	t.Helper()
	if err := eq.ForwardSolve(eq.Outputs(), nil); err != nil {
		t.Fatal(err)
	}
	if err := tp.Record(eq); err != nil {
		t.Fatal(err)
	}
}

func innerProduct(t *testing.T, x, y, z value.Value) equation.Equation {
	t.Helper()
	eq, err := equation.NewInnerProduct(x, 1, y, z)
	if err != nil {
		t.Fatal(err)
	}
	return eq
}

func TestRecordAndLookup(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{2})
	z := value.FromSlice("z", []float64{3})
	record(t, tp, innerProduct(t, x, y, z))

	if tp.Blocks() != 1 || tp.Len(0) != 1 {
		t.Fatalf("blocks %d len %d", tp.Blocks(), tp.Len(0))
	}
	if b, i, ok := tp.Producer(x.ID()); !ok || b != 0 || i != 0 {
		t.Fatalf("producer of x: %d %d %v", b, i, ok)
	}
	if _, _, ok := tp.Producer(y.ID()); ok {
		t.Fatal("y has a producer")
	}
	if data := tp.ForwardData(0, 0); len(data) != 2 {
		t.Fatalf("forward data: %d values", len(data))
	}
	// Forward data is a snapshot, not the live value.
	if data := tp.ForwardData(0, 0); data[0].ID() == y.ID() {
		t.Fatal("forward data aliases live values")
	}
}

func TestForwardDataSharedUntilMutation(t *testing.T) {
	tp := New()
	y := value.FromSlice("y", []float64{2})
	x1 := value.NewScalar("x1")
	x2 := value.NewScalar("x2")
	record(t, tp, innerProduct(t, x1, y, y))
	record(t, tp, innerProduct(t, x2, y, y))

	// y has not mutated between the two captures, so both equations hold
	// the same snapshot.
	a := tp.ForwardData(0, 0)[0]
	b := tp.ForwardData(0, 1)[0]
	if a.ID() != b.ID() {
		t.Fatal("captures of an unchanged value must share one snapshot")
	}

	y.Set(0, 5)
	x3 := value.NewScalar("x3")
	record(t, tp, innerProduct(t, x3, y, y))
	c := tp.ForwardData(0, 2)[0]
	if c.ID() == a.ID() {
		t.Fatal("capture after mutation must take a fresh snapshot")
	}
	if a.Data()[0] != 2 || c.Data()[0] != 5 {
		t.Fatalf("snapshots %v and %v do not reflect capture time", a.Data(), c.Data())
	}
}

func TestRecordSecondProducerFails(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{2})
	record(t, tp, innerProduct(t, x, y, y))

	dup := innerProduct(t, x, y, y)
	if err := tp.Record(dup); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second producer: got %v", err)
	}
}

func TestRecordAfterFinalizeFails(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{1})
	record(t, tp, innerProduct(t, x, y, y))
	tp.Finalize()

	w := value.NewScalar("w")
	if err := tp.Record(innerProduct(t, w, y, y)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("record after finalize: got %v", err)
	}
	if _, err := tp.NewBlock(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("new block after finalize: got %v", err)
	}
}

func TestNewBlock(t *testing.T) {
	tp := New()
	if _, err := tp.NewBlock(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("closed an empty block: %v", err)
	}
	if b, err := tp.NewBlock(AllowEmpty()); err != nil || b != 1 {
		t.Fatalf("allow-empty new block: %d, %v", b, err)
	}

	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{1})
	record(t, tp, innerProduct(t, x, y, y))
	if b, err := tp.NewBlock(); err != nil || b != 2 {
		t.Fatalf("new block: %d, %v", b, err)
	}

	// A trailing empty block is dropped on finalize.
	tp.Finalize()
	if tp.Blocks() != 2 {
		t.Fatalf("blocks after finalize: %d", tp.Blocks())
	}
}

func TestReplayRestoresClearedBlock(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{2})
	record(t, tp, innerProduct(t, x, y, y))
	if x.Scalar() != 4 {
		t.Fatalf("x = %v", x.Scalar())
	}

	if err := tp.Clear(0, nil); err != nil {
		t.Fatal(err)
	}
	if x.Scalar() != 0 {
		t.Fatal("clear did not zero the produced value")
	}
	if tp.ForwardData(0, 0) != nil {
		t.Fatal("clear did not drop forward data")
	}

	if err := tp.Replay(0); err != nil {
		t.Fatal(err)
	}
	if x.Scalar() != 4 {
		t.Fatalf("replayed x = %v", x.Scalar())
	}
	if tp.ForwardData(0, 0) == nil {
		t.Fatal("replay did not recapture forward data")
	}
}

func TestClearKeepsListedAndStaticValues(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{3})
	record(t, tp, innerProduct(t, x, y, y))

	if err := tp.Clear(0, map[uint64]bool{x.ID(): true}); err != nil {
		t.Fatal(err)
	}
	if x.Scalar() != 9 {
		t.Fatal("kept value was zeroed")
	}
}

func TestClearAndReplayRange(t *testing.T) {
	tp := New()
	if err := tp.Clear(3, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("out-of-range clear: %v", err)
	}
	if err := tp.Replay(-1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("out-of-range replay: %v", err)
	}
}

func TestCheckpointSet(t *testing.T) {
	tp := New()
	u0 := value.FromSlice("u0", []float64{1}) // external input
	s := value.NewStaticVector("s", 1)        // static, never checkpointed

	u1 := value.NewScalar("u1")
	record(t, tp, innerProduct(t, u1, u0, u0))
	if _, err := tp.NewBlock(); err != nil {
		t.Fatal(err)
	}

	u2 := value.NewScalar("u2")
	eq, err := equation.NewInnerProductSum(u2,
		equation.Pair{Alpha: 1, Y: u1, Z: u1},
		equation.Pair{Alpha: 1, Y: s, Z: s},
	)
	if err != nil {
		t.Fatal(err)
	}
	record(t, tp, eq)

	// Block 1 depends on u1 (produced in block 0) and s (static).
	set := tp.CheckpointSet(1)
	if len(set) != 1 || set[0].ID() != u1.ID() {
		t.Fatalf("checkpoint set of block 1: %v", names(set))
	}

	// From block 0 only the external input is needed.
	set = tp.CheckpointSet(0)
	if len(set) != 1 || set[0].ID() != u0.ID() {
		t.Fatalf("checkpoint set of block 0: %v", names(set))
	}
}

func TestCheckpointSetSkipsNonCheckpointed(t *testing.T) {
	tp := New()
	u0 := value.FromSlice("u0", []float64{1})
	u0.SetCheckpointed(false)

	u1 := value.NewScalar("u1")
	record(t, tp, innerProduct(t, u1, u0, u0))

	if set := tp.CheckpointSet(0); len(set) != 0 {
		t.Fatalf("non-checkpointed input stored: %v", names(set))
	}
}

func names(vs []value.Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name()
	}
	return out
}

func TestRefCounts(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{1})
	record(t, tp, innerProduct(t, x, y, y))

	// Dependencies are x (the solution) and y.
	if tp.Refs(y.ID()) != 1 || tp.Refs(x.ID()) != 1 {
		t.Fatalf("refs: x %d y %d", tp.Refs(x.ID()), tp.Refs(y.ID()))
	}
	if tp.Releasable(y.ID()) {
		t.Fatal("referenced value reported releasable")
	}
	if !tp.Releasable(value.NewScalar("unused").ID()) {
		t.Fatal("unreferenced value not releasable")
	}

	w := value.NewScalar("w")
	record(t, tp, innerProduct(t, w, x, x))
	if tp.Refs(x.ID()) != 2 {
		t.Fatalf("refs of x after second use: %d", tp.Refs(x.ID()))
	}
}

func TestRefsFollowClearAndReplay(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{2})
	record(t, tp, innerProduct(t, x, y, y))

	if tp.Refs(y.ID()) != 1 || tp.Releasable(y.ID()) {
		t.Fatalf("refs of y after record: %d", tp.Refs(y.ID()))
	}

	if err := tp.Clear(0, nil); err != nil {
		t.Fatal(err)
	}
	if tp.Refs(y.ID()) != 0 || !tp.Releasable(y.ID()) {
		t.Fatalf("refs of y after clear: %d", tp.Refs(y.ID()))
	}

	// A second clear releases nothing further.
	if err := tp.Clear(0, nil); err != nil {
		t.Fatal(err)
	}
	if tp.Refs(y.ID()) != 0 {
		t.Fatalf("refs of y after double clear: %d", tp.Refs(y.ID()))
	}

	if err := tp.Replay(0); err != nil {
		t.Fatal(err)
	}
	if tp.Refs(y.ID()) != 1 || tp.Releasable(y.ID()) {
		t.Fatalf("refs of y after replay: %d", tp.Refs(y.ID()))
	}

	// Replaying a live block does not double-retain.
	if err := tp.Replay(0); err != nil {
		t.Fatal(err)
	}
	if tp.Refs(y.ID()) != 1 {
		t.Fatalf("refs of y after replay of live block: %d", tp.Refs(y.ID()))
	}

	tp.Reset()
	if tp.Refs(y.ID()) != 0 {
		t.Fatalf("refs of y after reset: %d", tp.Refs(y.ID()))
	}
}

func TestReset(t *testing.T) {
	tp := New()
	x := value.NewScalar("x")
	y := value.FromSlice("y", []float64{1})
	record(t, tp, innerProduct(t, x, y, y))
	tp.Finalize()

	tp.Reset()
	if tp.Finalized() || tp.Blocks() != 1 || tp.Len(0) != 0 {
		t.Fatal("reset did not restore a fresh tape")
	}
	if _, _, ok := tp.Producer(x.ID()); ok {
		t.Fatal("producer survived reset")
	}
	record(t, tp, innerProduct(t, x, y, y))
}
