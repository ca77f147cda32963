// Package config holds the YAML run configuration and the named presets.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/sim"
)

const (
	DefaultDt        = 0.01
	DefaultDuration  = 10.0
	DefaultTolerance = 1e-6
	DefaultRuns      = 8
	DefaultSpread    = 0.01
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Model          string             `yaml:"model"`
	Integrator     string             `yaml:"integrator"`
	Dt             float64            `yaml:"dt"`
	Duration       float64            `yaml:"duration"`
	Seed           int64              `yaml:"seed"`
	Adaptive       bool               `yaml:"adaptive"`
	Tolerance      float64            `yaml:"tolerance"`
	UseEulerAngles bool               `yaml:"use_euler_angles"`
	Projection     ProjectionConfig   `yaml:"projection"`
	Params         map[string]float64 `yaml:"params,omitempty"`
	InitState      InitStateConfig    `yaml:"init_state,omitempty"`
	Ensemble       EnsembleConfig     `yaml:"ensemble"`
}

// ProjectionConfig sets the constraint tolerances applied after each step.
type ProjectionConfig struct {
	ConstraintTol float64 `yaml:"constraint_tol"`
	TargetTol     float64 `yaml:"target_tol"`
	Disabled      bool    `yaml:"disabled"`
}

// InitStateConfig overrides the model's initial coordinates and speeds.
// Empty slices keep the model defaults.
type InitStateConfig struct {
	Q []float64 `yaml:"q,omitempty"`
	U []float64 `yaml:"u,omitempty"`
}

type EnsembleConfig struct {
	Runs    int     `yaml:"runs"`
	Spread  float64 `yaml:"spread"`
	Workers int     `yaml:"workers"`
}

func DefaultConfig() *Config {
	proj := integrators.DefaultProjection()
	return &Config{
		Model:      "pendulum",
		Integrator: "rk4",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Tolerance:  DefaultTolerance,
		Projection: ProjectionConfig{
			ConstraintTol: proj.Tol,
			TargetTol:     proj.TargetTol,
		},
		Ensemble: EnsembleConfig{
			Runs:   DefaultRuns,
			Spread: DefaultSpread,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch {
	case c.Model == "":
		return errors.Wrap(ErrInvalid, "model is required")
	case c.Dt <= 0:
		return errors.Wrapf(ErrInvalid, "dt must be positive, got %g", c.Dt)
	case c.Duration <= 0:
		return errors.Wrapf(ErrInvalid, "duration must be positive, got %g", c.Duration)
	case c.Adaptive && c.Tolerance <= 0:
		return errors.Wrapf(ErrInvalid, "tolerance must be positive, got %g", c.Tolerance)
	case !c.Projection.Disabled && c.Projection.ConstraintTol <= 0:
		return errors.Wrapf(ErrInvalid, "constraint_tol must be positive, got %g", c.Projection.ConstraintTol)
	case c.Projection.TargetTol > c.Projection.ConstraintTol:
		return errors.Wrapf(ErrInvalid, "target_tol %g exceeds constraint_tol %g",
			c.Projection.TargetTol, c.Projection.ConstraintTol)
	case c.Ensemble.Runs < 0:
		return errors.Wrapf(ErrInvalid, "ensemble runs must not be negative, got %d", c.Ensemble.Runs)
	}
	if _, err := integrators.New(c.Integrator); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	return nil
}

// ProjectionSettings converts the projection section for the integrators.
func (c *Config) ProjectionSettings() integrators.Projection {
	target := c.Projection.TargetTol
	if target <= 0 {
		target = c.Projection.ConstraintTol / 100
	}
	return integrators.Projection{
		Tol:       c.Projection.ConstraintTol,
		TargetTol: target,
		Disabled:  c.Projection.Disabled,
	}
}

// SimConfig converts the run settings for the simulator.
func (c *Config) SimConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Dt = c.Dt
	cfg.Duration = c.Duration
	cfg.Seed = c.Seed
	cfg.Adaptive = c.Adaptive
	if c.Tolerance > 0 {
		cfg.Tolerance = c.Tolerance
	}
	cfg.MaxDt = 10 * c.Dt
	return cfg
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	if c.InitState.Q != nil {
		out.InitState.Q = append([]float64(nil), c.InitState.Q...)
	}
	if c.InitState.U != nil {
		out.InitState.U = append([]float64(nil), c.InitState.U...)
	}
	return &out
}
