package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
checkpointing:
  policy: multistage
  snaps_in_ram: 2
  snaps_on_disk: 4
  slow_write_cost: 0.5
fixed_point:
  max_iterations: 50
`))
	require.NoError(t, err)

	assert.Equal(t, PolicyMultistage, cfg.Checkpointing.Policy)
	assert.Equal(t, 2, cfg.Checkpointing.SnapsInRAM)
	assert.Equal(t, 4, cfg.Checkpointing.SnapsOnDisk)
	assert.Equal(t, 0.5, cfg.Checkpointing.SlowWriteCost)
	assert.Equal(t, 1.0, cfg.Checkpointing.SlowReadCost)
	assert.Equal(t, 50, cfg.FixedPoint.MaxIterations)
	// Untouched defaults survive.
	assert.Equal(t, 1e-12, cfg.FixedPoint.AbsoluteTolerance)
}

func TestParseEmptyGivesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("checkpointing:\n  polcy: revolve\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown policy", func(c *Config) { c.Checkpointing.Policy = "binomial" }},
		{"revolve without snaps", func(c *Config) {
			c.Checkpointing.Policy = PolicyRevolve
			c.Checkpointing.SnapsInRAM = 0
		}},
		{"revolve with disk snaps", func(c *Config) {
			c.Checkpointing.Policy = PolicyRevolve
			c.Checkpointing.SnapsInRAM = 2
			c.Checkpointing.SnapsOnDisk = 1
		}},
		{"multistage without slots", func(c *Config) { c.Checkpointing.Policy = PolicyMultistage }},
		{"negative cost", func(c *Config) { c.Checkpointing.SlowReadCost = -1 }},
		{"zero tolerances", func(c *Config) {
			c.FixedPoint.AbsoluteTolerance = 0
			c.FixedPoint.RelativeTolerance = 0
		}},
		{"no iterations", func(c *Config) { c.FixedPoint.MaxIterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adjoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"checkpointing:\n  policy: revolve\n  snaps_in_ram: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, PolicyRevolve, cfg.Checkpointing.Policy)
	assert.Equal(t, 3, cfg.Checkpointing.SnapsInRAM)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
