package schedule

import (
	"fmt"
	"sync"
)

// Weights are the cost weights of slow-tier checkpoint operations, measured
// in units of one block forward evaluation. Fast-tier operations are free.
type Weights struct {
	SlowWrite float64
	SlowRead  float64
}

// DefaultWeights weigh one slow write or read like one block replay.
func DefaultWeights() Weights {
	return Weights{SlowWrite: 1, SlowRead: 1}
}

// Revolve computes the binomial checkpointing schedule for n blocks and a
// bound of snaps simultaneously retained fast-tier checkpoints, including
// the checkpoint holding the initial block state.
//
// The planner follows the optimality recurrence
//
//	c(1, s) = 1
//	c(n, s) = min( n + c(n-1, s),
//	               min_d d + c(n-d, s-1) + c(d, s) )
//
// counting forward block evaluations, which reproduces the Griewank-Walther
// optimum (with s snapshots and repetition number t, up to beta(s,t) =
// C(s+t, s) blocks are reversible). Where several advance lengths tie, the
// largest is taken, and advancing without storing is preferred over an
// equal-cost store.
//
// When snaps >= n no recomputation is needed: every block's forward data is
// retained and the schedule only reverses and clears.
func Revolve(n, snaps int) (*Plan, error) {
	return plan(n, snaps, 0, Weights{})
}

// Multistage computes a two-tier schedule for n blocks with at most
// snapsFast fast-tier and snapsSlow slow-tier checkpoints retained at once
// (the initial-state checkpoint counts against its tier). The schedule is
// found by exhaustive search over advance lengths and tiers, minimizing
// replayed block evaluations plus weighted slow-tier traffic.
func Multistage(n, snapsFast, snapsSlow int, weights Weights) (*Plan, error) {
	return plan(n, snapsFast, snapsSlow, weights)
}

// cacheKey identifies a computed schedule. Block structure is typically
// static across repeated reverse sweeps, so plans are cached.
type cacheKey struct {
	n, fast, slow int
	weights       Weights
}

var (
	cacheMu sync.Mutex
	cache   = map[cacheKey][]Action{}
)

func plan(n, snapsFast, snapsSlow int, weights Weights) (*Plan, error) {
	if n < 1 {
		return nil, fmt.Errorf("schedule: need at least one block, got %d", n)
	}
	if snapsFast < 0 || snapsSlow < 0 {
		return nil, fmt.Errorf("schedule: negative checkpoint budget")
	}

	key := cacheKey{n: n, fast: snapsFast, slow: snapsSlow, weights: weights}
	cacheMu.Lock()
	actions, ok := cache[key]
	cacheMu.Unlock()
	if ok {
		return &Plan{actions: actions}, nil
	}

	var p planner
	switch {
	case snapsFast >= n:
		// Enough fast checkpoints to retain every block's forward
		// data: reverse in place.
		for b := n - 1; b >= 0; b-- {
			p.emit(Action{Kind: KindReverse, Block: b})
			p.emit(Action{Kind: KindClear, Block: b})
		}
	case snapsFast == 0 && snapsSlow == 0:
		return nil, fmt.Errorf("schedule: reversal of %d blocks requires at least one checkpoint", n)
	default:
		p = planner{weights: weights, memo: map[memoKey]choice{}}
		baseTier := TierFast
		if snapsFast == 0 {
			baseTier = TierSlow
		}
		fast, slow := snapsFast, snapsSlow
		if baseTier == TierFast {
			fast--
		} else {
			slow--
		}
		p.emit(Action{Kind: KindWriteCheckpoint, Block: 0, Tier: baseTier})
		p.rec(0, n, fast, slow, baseTier)
	}

	cacheMu.Lock()
	cache[key] = p.actions
	cacheMu.Unlock()
	return &Plan{actions: p.actions}, nil
}

type memoKey struct {
	n, fast, slow int
	baseTier      Tier
}

// choice is the optimal decision for a subproblem: advance without storing
// (store == false) or advance d blocks and store at that boundary.
type choice struct {
	cost  float64
	d     int
	store bool
	tier  Tier
}

type planner struct {
	weights Weights
	memo    map[memoKey]choice
	actions []Action
}

func (p *planner) emit(a Action) { p.actions = append(p.actions, a) }

func (p *planner) readCost(t Tier) float64 {
	if t == TierSlow {
		return p.weights.SlowRead
	}
	return 0
}

func (p *planner) writeCost(t Tier) float64 {
	if t == TierSlow {
		return p.weights.SlowWrite
	}
	return 0
}

// solve returns the optimal decision for reversing n blocks whose initial
// state is checkpointed on baseTier, with the given spare budgets.
func (p *planner) solve(n, fast, slow int, baseTier Tier) choice {
	key := memoKey{n: n, fast: fast, slow: slow, baseTier: baseTier}
	if c, ok := p.memo[key]; ok {
		return c
	}

	var best choice
	if n == 1 {
		best = choice{cost: p.readCost(baseTier) + 1}
	} else {
		// Run to the end without storing: n forwards, reverse the
		// last block, recurse on the rest.
		best = choice{cost: p.readCost(baseTier) + float64(n) + p.solve(n-1, fast, slow, baseTier).cost}
		// Or store a checkpoint after advancing d blocks. Larger
		// advances win ties.
		for d := n - 1; d >= 1; d-- {
			if fast > 0 {
				c := p.readCost(baseTier) + float64(d) +
					p.solve(n-d, fast-1, slow, TierFast).cost +
					p.solve(d, fast, slow, baseTier).cost
				if c < best.cost {
					best = choice{cost: c, d: d, store: true, tier: TierFast}
				}
			}
			if slow > 0 {
				c := p.readCost(baseTier) + p.writeCost(TierSlow) + float64(d) +
					p.solve(n-d, fast, slow-1, TierSlow).cost +
					p.solve(d, fast, slow, baseTier).cost
				if c < best.cost {
					best = choice{cost: c, d: d, store: true, tier: TierSlow}
				}
			}
		}
	}
	p.memo[key] = best
	return best
}

// rec emits the actions for reversing blocks [base, base+n) whose initial
// state is checkpointed on baseTier. Every segment starts by restoring the
// base checkpoint; the engine drops a checkpoint once its block has been
// reversed, which is exactly when no segment will read it again.
func (p *planner) rec(base, n, fast, slow int, baseTier Tier) {
	p.emit(Action{Kind: KindReadCheckpoint, Block: base, Tier: baseTier})
	if n == 1 {
		p.emit(Action{Kind: KindForward, Block: base})
		p.emit(Action{Kind: KindReverse, Block: base})
		p.emit(Action{Kind: KindClear, Block: base})
		return
	}
	c := p.solve(n, fast, slow, baseTier)
	if !c.store {
		for b := base; b < base+n; b++ {
			p.emit(Action{Kind: KindForward, Block: b})
		}
		p.emit(Action{Kind: KindReverse, Block: base + n - 1})
		p.emit(Action{Kind: KindClear, Block: base + n - 1})
		p.rec(base, n-1, fast, slow, baseTier)
		return
	}
	for b := base; b < base+c.d; b++ {
		p.emit(Action{Kind: KindForward, Block: b})
	}
	p.emit(Action{Kind: KindWriteCheckpoint, Block: base + c.d, Tier: c.tier})
	if c.tier == TierFast {
		p.rec(base+c.d, n-c.d, fast-1, slow, TierFast)
	} else {
		p.rec(base+c.d, n-c.d, fast, slow-1, TierSlow)
	}
	p.rec(base, c.d, fast, slow, baseTier)
}
