// Copyright 2026 The Adjoint Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package adjoint provides the derivative engine.
//
// A Manager records solved equations on a block-partitioned tape,
// propagates tangent-linear directions eagerly, and computes gradients by a
// checkpointed reverse sweep.
//
// Example:
//
//	man := adjoint.New()
//	m := value.FromSlice("m", []float64{0.3})
//	// ... solve equations via man.Solve, close blocks via man.NewBlock ...
//	grads, err := man.ComputeGradient(j, []value.Value{m})
package adjoint

import (
	"github.com/adjoint-ml/adjoint/internal/config"
	"github.com/adjoint-ml/adjoint/internal/engine"
)

// Manager owns the tape and the derivative machinery.
type Manager = engine.Manager

// Functional assembles a differentiable scalar quantity of interest.
type Functional = engine.Functional

// Option configures a Manager.
type Option = engine.Option

// Config is the engine configuration.
type Config = config.Config

// Checkpointing selects and sizes the checkpointing policy.
type Checkpointing = config.Checkpointing

// Checkpointing policies.
const (
	PolicyMemory     = config.PolicyMemory
	PolicyRevolve    = config.PolicyRevolve
	PolicyMultistage = config.PolicyMultistage
)

// Engine errors.
var (
	ErrMissingCheckpoint = engine.ErrMissingCheckpoint
	ErrNotScalar         = engine.ErrNotScalar
	ErrInvalidConfig     = config.ErrInvalid
)

// New creates a Manager with annotation active and an empty tape.
func New(opts ...Option) *Manager {
	return engine.New(opts...)
}

// WithConfig sets the full configuration.
var WithConfig = engine.WithConfig

// WithLogger sets the structured logger.
var WithLogger = engine.WithLogger

// NewFunctional creates an unassigned functional on the manager.
func NewFunctional(man *Manager, name string) *Functional {
	return engine.NewFunctional(man, name)
}

// DefaultConfig returns the default configuration: keep all forward data in
// memory.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}
