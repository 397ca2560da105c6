package config

import (
	"fmt"
	"sort"

	"github.com/milosgajdos/go-mpc/matrix"
)

var presets = map[string]func() *Config{
	"pitch":             pitch,
	"double-integrator": doubleIntegrator,
}

// Preset returns a copy of the named preset configuration.
func Preset(name string) (*Config, error) {
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}

	return p(), nil
}

// PresetNames returns sorted names of the available presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// pitch regulates normalized aircraft pitch dynamics towards a pitch angle
// of 0.5 with the elevator deflection limited to [-1, 1].
func pitch() *Config {
	return &Config{
		Name: "pitch",
		Model: ModelConfig{
			Type: Discrete,
			A: [][]float64{
				{0.95, 0.3, 0.0},
				{-0.02, 0.9, 0.0},
				{0.0, 0.1, 1.0},
			},
			B: [][]float64{{0.02}, {0.1}, {0.0}},
		},
		Horizon: 15,
		Steps:   30,
		Weights: WeightsConfig{
			Q:  diag(40, 40, 40),
			Qf: diag(100, 100, 100),
			R:  diag(1),
		},
		Reference: []float64{0.5, 0, 0.5},
		InitState: []float64{0, 0.1, 0},
		Bounds: BoundsConfig{
			StateMin: []float64{-1},
			StateMax: []float64{1},
			InputMin: []float64{-1},
			InputMax: []float64{1},
		},
	}
}

// doubleIntegrator brings a double integrator sampled at 0.1s to rest
// at the origin with bounded acceleration. Only the position is measured.
func doubleIntegrator() *Config {
	return &Config{
		Name: "double-integrator",
		Model: ModelConfig{
			Type: Continuous,
			Ts:   0.1,
			A: [][]float64{
				{0, 1},
				{0, 0},
			},
			B: [][]float64{{0}, {1}},
			C: [][]float64{{1, 0}},
		},
		Horizon: 20,
		Steps:   60,
		Weights: WeightsConfig{
			Q:  diag(10, 1),
			Qf: diag(100, 10),
			R:  diag(0.1),
		},
		Reference: []float64{0, 0},
		InitState: []float64{5, 0},
		Bounds: BoundsConfig{
			StateMin: []float64{-10},
			StateMax: []float64{10},
			InputMin: []float64{-1},
			InputMax: []float64{1},
		},
		WarmStart: true,
		Measurement: NoiseConfig{
			Cov:  []float64{1e-4},
			Seed: 1,
		},
		Estimator: EstimatorConfig{
			Enabled: true,
		},
	}
}

func diag(vals ...float64) [][]float64 {
	return rows(matrix.NewDiag(vals...))
}
