// Package config loads engine configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Checkpointing policies.
const (
	PolicyMemory     = "memory"     // retain all forward data, no recomputation
	PolicyRevolve    = "revolve"    // binomial checkpointing, fast tier only
	PolicyMultistage = "multistage" // two-tier fast/slow checkpointing
)

// Checkpointing selects and sizes the checkpointing policy.
type Checkpointing struct {
	Policy      string `yaml:"policy"`
	SnapsInRAM  int    `yaml:"snaps_in_ram"`
	SnapsOnDisk int    `yaml:"snaps_on_disk"`

	// Dir is the base directory for slow-tier checkpoint files. Empty
	// means the system temporary directory.
	Dir string `yaml:"dir"`

	// Slow-tier cost weights in units of one block forward evaluation,
	// used by the multistage schedule search.
	SlowWriteCost float64 `yaml:"slow_write_cost"`
	SlowReadCost  float64 `yaml:"slow_read_cost"`
}

// FixedPoint holds default solver parameters for fixed-point equations.
type FixedPoint struct {
	AbsoluteTolerance float64 `yaml:"absolute_tolerance"`
	RelativeTolerance float64 `yaml:"relative_tolerance"`
	MaxIterations     int     `yaml:"max_iterations"`
}

// Config is the root configuration.
type Config struct {
	Checkpointing Checkpointing `yaml:"checkpointing"`
	FixedPoint    FixedPoint    `yaml:"fixed_point"`
}

// Default returns the configuration used when no file is given: keep all
// forward data in memory.
func Default() Config {
	return Config{
		Checkpointing: Checkpointing{
			Policy:        PolicyMemory,
			SlowWriteCost: 1,
			SlowReadCost:  1,
		},
		FixedPoint: FixedPoint{
			AbsoluteTolerance: 1e-12,
			RelativeTolerance: 1e-10,
			MaxIterations:     1000,
		},
	}
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// fields are rejected.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	ck := c.Checkpointing
	switch ck.Policy {
	case PolicyMemory:
	case PolicyRevolve:
		if ck.SnapsInRAM < 1 {
			return fmt.Errorf("%w: policy %q needs snaps_in_ram >= 1", ErrInvalid, ck.Policy)
		}
		if ck.SnapsOnDisk != 0 {
			return fmt.Errorf("%w: policy %q does not use snaps_on_disk", ErrInvalid, ck.Policy)
		}
	case PolicyMultistage:
		if ck.SnapsInRAM < 0 || ck.SnapsOnDisk < 0 {
			return fmt.Errorf("%w: negative checkpoint budget", ErrInvalid)
		}
		if ck.SnapsInRAM+ck.SnapsOnDisk < 1 {
			return fmt.Errorf("%w: policy %q needs at least one checkpoint slot", ErrInvalid, ck.Policy)
		}
	default:
		return fmt.Errorf("%w: unknown checkpointing policy %q", ErrInvalid, ck.Policy)
	}
	if ck.SlowWriteCost < 0 || ck.SlowReadCost < 0 {
		return fmt.Errorf("%w: negative slow-tier cost weight", ErrInvalid)
	}

	fp := c.FixedPoint
	if fp.AbsoluteTolerance < 0 || fp.RelativeTolerance < 0 {
		return fmt.Errorf("%w: negative fixed-point tolerance", ErrInvalid)
	}
	if fp.AbsoluteTolerance == 0 && fp.RelativeTolerance == 0 {
		return fmt.Errorf("%w: fixed-point tolerances are both zero", ErrInvalid)
	}
	if fp.MaxIterations < 1 {
		return fmt.Errorf("%w: fixed-point max_iterations must be >= 1", ErrInvalid)
	}
	return nil
}
