// Package engine drives forward recording, tangent-linear propagation and
// checkpointed adjoint sweeps.
//
// A Manager owns one tape. While annotation is active every solved equation
// is recorded; configured tangent-linear directions are propagated eagerly,
// so each forward solve is immediately followed by the solves of its derived
// tangent equations. The reverse sweep accumulates adjoint right-hand sides
// per value and resolves each equation's adjoint through its Jacobian solve,
// replaying forward blocks from checkpoints as dictated by the schedule.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/adjoint-ml/adjoint/internal/config"
	"github.com/adjoint-ml/adjoint/internal/equation"
	"github.com/adjoint-ml/adjoint/internal/tape"
	"github.com/adjoint-ml/adjoint/internal/value"
)

// Engine errors.
var (
	// ErrMissingCheckpoint is returned when a reverse sweep needs a block
	// boundary state that is neither stored nor recomputable.
	ErrMissingCheckpoint = errors.New("engine: missing checkpoint")
	// ErrNotScalar is returned when a gradient is requested for a
	// functional that is not one-dimensional.
	ErrNotScalar = errors.New("engine: functional is not scalar")
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithConfig sets the full configuration.
func WithConfig(cfg config.Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// Manager owns the tape and the derivative machinery. It is not safe for
// concurrent use; one Manager per goroutine.
type Manager struct {
	log *slog.Logger
	cfg config.Config

	tape       *tape.Tape
	annotating bool
	tlms       []*equation.TangentLinearMap
}

// New creates a Manager with annotation active and an empty tape.
func New(opts ...Option) *Manager {
	m := &Manager{
		log:        slog.Default(),
		cfg:        config.Default(),
		tape:       tape.New(),
		annotating: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tape exposes the underlying tape.
func (m *Manager) Tape() *tape.Tape { return m.tape }

// Start resumes annotation: subsequent solves are recorded.
func (m *Manager) Start() { m.annotating = true }

// Stop pauses annotation: subsequent solves run forward only.
func (m *Manager) Stop() { m.annotating = false }

// Annotating reports whether solves are being recorded.
func (m *Manager) Annotating() bool { return m.annotating }

// NewBlock closes the current tape block and opens the next.
func (m *Manager) NewBlock() (int, error) { return m.tape.NewBlock() }

// Finalize closes the tape for recording.
func (m *Manager) Finalize() { m.tape.Finalize() }

// Reset discards the tape and all tangent-linear state.
func (m *Manager) Reset() {
	m.tape.Reset()
	m.tlms = nil
	m.annotating = true
}

// ConfigureCheckpointing replaces the checkpointing configuration. It must
// be called before the reverse sweep; changing the policy after recording
// started is allowed since schedules depend only on the final block count.
func (m *Manager) ConfigureCheckpointing(ck config.Checkpointing) error {
	cfg := m.cfg
	cfg.Checkpointing = ck
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

// ConfigureTangentLinear registers a perturbation direction (controls,
// directions). Equations solved afterwards propagate the corresponding
// tangents; the returned map resolves the tangent of any forward value.
func (m *Manager) ConfigureTangentLinear(controls, directions []value.Value) (*equation.TangentLinearMap, error) {
	if len(controls) != len(directions) {
		return nil, fmt.Errorf("engine: %d controls with %d directions", len(controls), len(directions))
	}
	for i, c := range controls {
		if c.Len() != directions[i].Len() {
			return nil, fmt.Errorf("%w: control %q (%d) with direction %q (%d)",
				value.ErrSpaceMismatch, c.Name(), c.Len(), directions[i].Name(), directions[i].Len())
		}
	}
	tlm := equation.NewTangentLinearMap(controls, directions)
	m.tlms = append(m.tlms, tlm)
	return tlm, nil
}

// Solve runs the forward solve of eq, records it when annotating, and
// derives, solves and records the tangent-linear equations of every
// configured direction.
func (m *Manager) Solve(eq equation.Equation) error {
	if err := eq.ForwardSolve(eq.Outputs(), nil); err != nil {
		return fmt.Errorf("engine: forward solve: %w", err)
	}
	if m.annotating {
		if err := m.tape.Record(eq); err != nil {
			return err
		}
	}
	for _, tlm := range m.tlms {
		controls, directions := tlm.Direction()
		teq, err := eq.TangentLinear(controls, directions, tlm)
		if err != nil {
			return fmt.Errorf("engine: tangent derivation: %w", err)
		}
		if teq == nil {
			// No tangent flows through eq: any tangents of its
			// outputs created earlier are stale.
			for _, x := range eq.Outputs() {
				if tau, ok := tlm.Lookup(x); ok {
					tau.Zero()
				}
			}
			continue
		}
		if err := teq.ForwardSolve(teq.Outputs(), nil); err != nil {
			return fmt.Errorf("engine: tangent solve: %w", err)
		}
		if m.annotating {
			if err := m.tape.Record(teq); err != nil {
				return err
			}
		}
	}
	return nil
}
