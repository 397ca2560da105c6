package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/milosgajdos/go-mpc/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestPresetsCmd(t *testing.T) {
	assert := assert.New(t)

	out, err := execute("presets")
	assert.NoError(err)
	assert.Equal("double-integrator\npitch\n", out)
}

func TestConfigCmd(t *testing.T) {
	assert := assert.New(t)

	out, err := execute("config", "--preset", "double-integrator")
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal("double-integrator", cfg.Name)

	_, err = execute("config", "--preset", "nonexistent")
	assert.Error(err)
}

func TestRunCmd(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	jsonOut := filepath.Join(dir, "traj.json")
	csvOut := filepath.Join(dir, "traj.csv")
	pngOut := filepath.Join(dir, "traj.png")

	out, err := execute("run", "--preset", "pitch", "--steps", "5", "--horizon", "10",
		"--json", jsonOut, "--csv", csvOut, "--png", pngOut, "--chart")
	require.NoError(t, err)
	assert.Contains(out, "mpcsim: pitch")
	assert.Contains(out, "closed loop trajectory")

	for _, f := range []string{jsonOut, csvOut, pngOut, filepath.Join(dir, "traj_inputs.png")} {
		info, err := os.Stat(f)
		require.NoError(t, err, f)
		assert.Greater(info.Size(), int64(0), f)
	}

	data, err := os.ReadFile(csvOut)
	require.NoError(t, err)
	assert.Len(strings.Split(strings.TrimSpace(string(data)), "\n"), 7)
}

func TestRunCmdConfigFile(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := config.Preset("double-integrator")
	require.NoError(t, err)
	cfg.Steps = 3
	require.NoError(t, config.Save(path, cfg))

	out, err := execute("run", "--config", path, "--json", "-")
	require.NoError(t, err)
	assert.Contains(out, `"steps": 3`)

	_, err = execute("run", "--preset", "pitch", "--horizon", "0")
	assert.Error(err)

	_, err = execute("run", "--preset", "pitch", "--config", path)
	assert.Error(err)
}

func TestFinite(t *testing.T) {
	assert := assert.New(t)

	lower := []float64{math.Inf(-1), 1}
	assert.Equal([]float64{1, 2}, finite(lower, []float64{1, 2, math.NaN()}, nil))
}
