// Package schedule computes checkpointing schedules for reverse sweeps.
//
// A schedule is a deterministic list of actions consumed one at a time by
// the adjoint engine. Two policies are provided:
//
//   - Revolve: the classical binomial checkpointing policy. For n forward
//     blocks and a bound of s simultaneously retained checkpoints it
//     minimizes the number of replayed block evaluations
//     (Griewank and Walther, ACM TOMS 26(1), 2000).
//   - Multistage: a two-tier (fast/slow storage) extension found by search
//     over advance lengths and tiers (after Stumm and Walther,
//     SIAM J. Sci. Comput. 31(3), 2009).
//
// Schedules depend only on (blocks, checkpoint budgets), so computed plans
// are cached and reused across sweeps.
package schedule

import "fmt"

// Tier selects the checkpoint storage tier.
type Tier int

// Storage tiers.
const (
	TierFast Tier = iota // in-memory
	TierSlow             // on-disk
)

// String returns a human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// Kind enumerates schedule action kinds.
type Kind int

// Action kinds, in the order the engine distinguishes them.
const (
	KindForward Kind = iota // forward-evaluate (replay) one block
	KindWriteCheckpoint     // store the input state of a block
	KindReadCheckpoint      // restore the input state of a block
	KindReverse             // run the adjoint sweep over one block
	KindClear               // drop the forward data of a block
	KindDone                // schedule exhausted
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindForward:
		return "forward"
	case KindWriteCheckpoint:
		return "write-checkpoint"
	case KindReadCheckpoint:
		return "read-checkpoint"
	case KindReverse:
		return "reverse"
	case KindClear:
		return "clear"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Action is one step of a schedule. Block is the block index the action
// applies to; Tier is meaningful for checkpoint actions only.
type Action struct {
	Kind  Kind
	Block int
	Tier  Tier
}

// String formats the action for schedule listings.
func (a Action) String() string {
	switch a.Kind {
	case KindWriteCheckpoint, KindReadCheckpoint:
		return fmt.Sprintf("%s %d (%s)", a.Kind, a.Block, a.Tier)
	case KindDone:
		return a.Kind.String()
	default:
		return fmt.Sprintf("%s %d", a.Kind, a.Block)
	}
}

// Plan is a computed schedule, consumed lazily via Next.
type Plan struct {
	actions []Action
	pos     int
}

// Actions returns the full action list, excluding the terminating Done.
func (p *Plan) Actions() []Action {
	return p.actions
}

// Next returns the next action, or a Done action when the plan is
// exhausted.
func (p *Plan) Next() Action {
	if p.pos >= len(p.actions) {
		return Action{Kind: KindDone}
	}
	a := p.actions[p.pos]
	p.pos++
	return a
}

// Rewind resets the plan for another sweep.
func (p *Plan) Rewind() { p.pos = 0 }

// Replays returns the number of replayed block evaluations: every Forward
// action beyond one evaluation per block.
func (p *Plan) Replays() int {
	forwards := 0
	blocks := map[int]bool{}
	for _, a := range p.actions {
		if a.Kind == KindForward {
			forwards++
			blocks[a.Block] = true
		}
	}
	return forwards - len(blocks)
}
