package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mbsim/internal/config"
)

func newRunCmd(t *testing.T) *cobra.Command {
	t.Helper()
	preset, configFile = "", ""
	params = nil
	c := &cobra.Command{Use: "run"}
	addRunFlags(c)
	return c
}

func TestResolveConfigDefaults(t *testing.T) {
	c := newRunCmd(t)
	cfg, err := resolveConfig(c, "four_bar")
	require.NoError(t, err)
	assert.Equal(t, "four_bar", cfg.Model)
	assert.Equal(t, config.DefaultDt, cfg.Dt)
	assert.Equal(t, "rk4", cfg.Integrator)
}

func TestResolveConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dt: 0.002\nduration: 3\nparams:\n  omega0: 0.5\n"), 0644))

	c := newRunCmd(t)
	require.NoError(t, c.Flags().Set("preset", "crank"))
	require.NoError(t, c.Flags().Set("config", path))
	require.NoError(t, c.Flags().Set("time", "7"))
	require.NoError(t, c.Flags().Set("param", "mass=2"))
	require.NoError(t, c.Flags().Set("integrator", "rk45"))

	cfg, err := resolveConfig(c, "four_bar")
	require.NoError(t, err)
	assert.Equal(t, 0.002, cfg.Dt, "config file overrides preset")
	assert.Equal(t, 7.0, cfg.Duration, "flag overrides config file")
	assert.Equal(t, "rk45", cfg.Integrator)
	assert.Equal(t, 0.5, cfg.Params["omega0"])
	assert.Equal(t, 2.0, cfg.Params["mass"])
}

func TestResolveConfigErrors(t *testing.T) {
	c := newRunCmd(t)
	require.NoError(t, c.Flags().Set("preset", "nope"))
	_, err := resolveConfig(c, "pendulum")
	assert.Error(t, err)

	c = newRunCmd(t)
	require.NoError(t, c.Flags().Set("dt", "-1"))
	_, err = resolveConfig(c, "pendulum")
	assert.ErrorIs(t, err, config.ErrInvalid)

	c = newRunCmd(t)
	require.NoError(t, c.Flags().Set("param", "mass=heavy"))
	_, err = resolveConfig(c, "pendulum")
	assert.Error(t, err)
}

func TestSpan(t *testing.T) {
	assert.Equal(t, "-", span(3, 0))
	assert.Equal(t, "3", span(3, 1))
	assert.Equal(t, "3-6", span(3, 4))
}

func TestParseGridAndApply(t *testing.T) {
	names, ranges, err := parseGrid([]string{"dt=0.01, 0.005", "mass=2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dt", "mass"}, names)
	assert.Equal(t, [][]float64{{0.01, 0.005}, {2}}, ranges)

	_, _, err = parseGrid([]string{"dt"})
	assert.Error(t, err)
	_, _, err = parseGrid([]string{"dt=fast"})
	assert.Error(t, err)

	cfg := config.DefaultConfig()
	applyPoint(cfg, map[string]float64{"dt": 0.002, "constraint_tol": 1e-6, "mass": 3})
	assert.Equal(t, 0.002, cfg.Dt)
	assert.Equal(t, 1e-6, cfg.Projection.ConstraintTol)
	assert.Equal(t, 3.0, cfg.Params["mass"])
}

func TestTraceWritesSVG(t *testing.T) {
	c := newRunCmd(t)
	c.SetContext(context.Background())
	require.NoError(t, c.Flags().Set("time", "0.5"))
	traceBody = -1
	traceOut = filepath.Join(t.TempDir(), "trace.svg")

	require.NoError(t, traceModel(c, []string{"pendulum"}))
	data, err := os.ReadFile(traceOut)
	require.NoError(t, err)
	svg := string(data)
	assert.True(t, strings.HasPrefix(svg, "<?xml"))
	assert.Contains(t, svg, "<path")
	assert.Contains(t, svg, "<line")
}
