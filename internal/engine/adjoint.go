package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/adjoint-ml/adjoint/internal/checkpoint"
	"github.com/adjoint-ml/adjoint/internal/config"
	"github.com/adjoint-ml/adjoint/internal/schedule"
	"github.com/adjoint-ml/adjoint/internal/value"
)

// sweep carries the adjoint accumulation state of one reverse pass: for each
// value id, the accumulated adjoint right-hand side.
type sweep struct {
	man *Manager
	adj map[uint64]value.Value
}

// ComputeGradient finalizes the tape and computes the derivative of the
// scalar functional j with respect to each control, running the reverse
// sweep under the configured checkpointing policy. Controls with no path to
// j get a zero gradient.
func (m *Manager) ComputeGradient(j value.Value, controls []value.Value) ([]value.Value, error) {
	if j.Len() != 1 {
		return nil, fmt.Errorf("%w: %q has dimension %d", ErrNotScalar, j.Name(), j.Len())
	}
	m.tape.Finalize()

	s := &sweep{man: m, adj: make(map[uint64]value.Value)}
	seed := j.NewLike()
	if err := seed.SetData([]float64{1}); err != nil {
		return nil, err
	}
	s.adj[j.ID()] = seed

	if err := m.runReverse(s); err != nil {
		return nil, err
	}

	grads := make([]value.Value, len(controls))
	for i, c := range controls {
		if g, ok := s.adj[c.ID()]; ok {
			grads[i] = g
		} else {
			grads[i] = c.NewLike()
		}
	}
	return grads, nil
}

// runReverse dispatches on the checkpointing policy.
func (m *Manager) runReverse(s *sweep) error {
	n := m.tape.Blocks()
	ck := m.cfg.Checkpointing

	switch ck.Policy {
	case config.PolicyMemory:
		m.log.Debug("reverse sweep", "policy", ck.Policy, "blocks", n)
		for b := n - 1; b >= 0; b-- {
			if err := s.reverseBlock(b); err != nil {
				return err
			}
		}
		return nil

	case config.PolicyRevolve, config.PolicyMultistage:
		var plan *schedule.Plan
		var err error
		if ck.Policy == config.PolicyRevolve {
			plan, err = schedule.Revolve(n, ck.SnapsInRAM)
		} else {
			plan, err = schedule.Multistage(n, ck.SnapsInRAM, ck.SnapsOnDisk, schedule.Weights{
				SlowWrite: ck.SlowWriteCost,
				SlowRead:  ck.SlowReadCost,
			})
		}
		if err != nil {
			return err
		}
		m.log.Debug("reverse sweep", "policy", ck.Policy, "blocks", n,
			"snaps_in_ram", ck.SnapsInRAM, "snaps_on_disk", ck.SnapsOnDisk,
			"replays", plan.Replays())

		store := checkpoint.Tiered{Fast: checkpoint.NewMemoryStore()}
		if ck.SnapsOnDisk > 0 {
			dir := ck.Dir
			if dir == "" {
				dir = os.TempDir()
			}
			slow, err := checkpoint.NewDiskStore(dir, m.log)
			if err != nil {
				return err
			}
			store.Slow = slow
		}
		defer store.Close()
		return m.runPlan(s, plan, store)

	default:
		return fmt.Errorf("%w: unknown checkpointing policy %q", config.ErrInvalid, ck.Policy)
	}
}

// runPlan executes a schedule. Schedules whose first action stores the
// initial boundary assume the bounded-memory regime: all forward data is
// dropped up front and recomputed per the plan. A checkpoint is deleted once
// its block has been reversed; no later action reads it.
func (m *Manager) runPlan(s *sweep, plan *schedule.Plan, store checkpoint.Tiered) error {
	t := m.tape
	if as := plan.Actions(); len(as) > 0 && as[0].Kind == schedule.KindWriteCheckpoint {
		if err := m.writeCheckpoint(store, as[0]); err != nil {
			return err
		}
		for b := 0; b < t.Blocks(); b++ {
			if err := t.Clear(b, nil); err != nil {
				return err
			}
		}
		plan.Rewind()
		plan.Next()
	} else {
		plan.Rewind()
	}

	for {
		a := plan.Next()
		switch a.Kind {
		case schedule.KindDone:
			return nil
		case schedule.KindForward:
			if err := t.Replay(a.Block); err != nil {
				return err
			}
		case schedule.KindWriteCheckpoint:
			if err := m.writeCheckpoint(store, a); err != nil {
				return err
			}
		case schedule.KindReadCheckpoint:
			if err := m.readCheckpoint(store, a); err != nil {
				return err
			}
		case schedule.KindReverse:
			if err := s.reverseBlock(a.Block); err != nil {
				return err
			}
			if err := store.Delete(a.Block); err != nil {
				return err
			}
		case schedule.KindClear:
			if err := t.Clear(a.Block, nil); err != nil {
				return err
			}
		default:
			return fmt.Errorf("engine: unexpected schedule action %s", a)
		}
	}
}

// writeCheckpoint snapshots the boundary state of a block.
func (m *Manager) writeCheckpoint(store checkpoint.Tiered, a schedule.Action) error {
	set := m.tape.CheckpointSet(a.Block)
	entries := make([]checkpoint.Entry, len(set))
	for i, v := range set {
		entries[i] = checkpoint.Entry{ID: v.ID(), Name: v.Name(), Data: v.Data()}
	}
	return store.Write(a.Block, a.Tier == schedule.TierSlow, entries)
}

// readCheckpoint restores the boundary state of a block into the live
// values.
func (m *Manager) readCheckpoint(store checkpoint.Tiered, a schedule.Action) error {
	entries, err := store.Read(a.Block, a.Tier == schedule.TierSlow)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("%w: block %d", ErrMissingCheckpoint, a.Block)
		}
		return err
	}
	live := make(map[uint64]value.Value)
	for _, v := range m.tape.CheckpointSet(a.Block) {
		live[v.ID()] = v
	}
	if len(entries) != len(live) {
		return fmt.Errorf("%w: block %d stores %d values, need %d",
			ErrMissingCheckpoint, a.Block, len(entries), len(live))
	}
	for _, e := range entries {
		v, ok := live[e.ID]
		if !ok {
			return fmt.Errorf("%w: block %d has no live value for id %d (%s)",
				ErrMissingCheckpoint, a.Block, e.ID, e.Name)
		}
		if err := v.SetData(e.Data); err != nil {
			return err
		}
	}
	return nil
}

// reverseBlock runs the adjoint sweep over one block, last equation first.
//
// For each equation with a pending adjoint right-hand side on any output,
// the adjoint solution is obtained through the adjoint Jacobian solve, and
// each non-solution dependency d accumulates
//
//	B[d] -= scale * action(d)
//
// from the adjoint derivative action. Equations with no pending right-hand
// side have no influence on the functional and are skipped.
func (s *sweep) reverseBlock(b int) error {
	t := s.man.tape
	for i := t.Len(b) - 1; i >= 0; i-- {
		eq := t.Equation(b, i)
		outputs := eq.Outputs()

		pending := false
		for _, x := range outputs {
			if _, ok := s.adj[x.ID()]; ok {
				pending = true
				break
			}
		}
		if !pending {
			continue
		}

		rhs := make([]value.Value, len(outputs))
		for k, x := range outputs {
			if a, ok := s.adj[x.ID()]; ok {
				rhs[k] = a
				delete(s.adj, x.ID())
			} else {
				rhs[k] = x.NewLike()
			}
		}

		data := t.ForwardData(b, i)
		if data == nil && len(eq.NonlinearDependencies()) > 0 {
			return fmt.Errorf("%w: forward data of equation %d of block %d", ErrMissingCheckpoint, i, b)
		}
		lambda, err := eq.AdjointJacobianSolve(data, rhs)
		if err != nil {
			return fmt.Errorf("engine: adjoint solve of equation %d of block %d: %w", i, b, err)
		}

		solved := make(map[uint64]bool, len(outputs))
		for _, x := range outputs {
			solved[x.ID()] = true
		}
		for depIndex, dep := range eq.Dependencies() {
			if solved[dep.ID()] {
				continue
			}
			act, err := eq.AdjointDerivativeAction(data, depIndex, lambda)
			if err != nil {
				return fmt.Errorf("engine: derivative action of equation %d of block %d: %w", i, b, err)
			}
			if act.IsZero() || act.Scale == 0 || act.Value.IsZero() {
				continue
			}
			a, ok := s.adj[dep.ID()]
			if !ok {
				a = dep.NewLike()
				s.adj[dep.ID()] = a
			}
			if err := a.Axpy(-act.Scale, act.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
