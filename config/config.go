// Package config loads and builds closed loop MPC simulations from YAML.
package config

import (
	"context"
	"fmt"
	"math"
	"os"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/closedloop"
	"github.com/milosgajdos/go-mpc/constraint"
	"github.com/milosgajdos/go-mpc/controller"
	"github.com/milosgajdos/go-mpc/cost"
	"github.com/milosgajdos/go-mpc/estimate/kf"
	"github.com/milosgajdos/go-mpc/matrix"
	"github.com/milosgajdos/go-mpc/noise"
	"github.com/milosgajdos/go-mpc/sim"
	"github.com/milosgajdos/go-mpc/solver"
	"gopkg.in/yaml.v3"
	"gonum.org/v1/gonum/mat"
)

const (
	// Discrete is discrete-time model type
	Discrete = "discrete"
	// Continuous is continuous-time model type, discretized with the model sample time
	Continuous = "continuous"
)

// Config is a closed loop simulation configuration.
type Config struct {
	Name        string          `yaml:"name,omitempty"`
	Model       ModelConfig     `yaml:"model"`
	Horizon     int             `yaml:"horizon"`
	Steps       int             `yaml:"steps"`
	Weights     WeightsConfig   `yaml:"weights"`
	Reference   []float64       `yaml:"reference"`
	InitState   []float64       `yaml:"init_state"`
	Bounds      BoundsConfig    `yaml:"bounds"`
	Solver      SolverConfig    `yaml:"solver"`
	WarmStart   bool            `yaml:"warm_start"`
	Strict      bool            `yaml:"strict"`
	Disturbance NoiseConfig     `yaml:"disturbance,omitempty"`
	Measurement NoiseConfig     `yaml:"measurement,omitempty"`
	Estimator   EstimatorConfig `yaml:"estimator,omitempty"`
}

// ModelConfig configures the plant model.
// Matrices are given as lists of rows.
type ModelConfig struct {
	Type string      `yaml:"type"`
	Ts   float64     `yaml:"ts,omitempty"`
	A    [][]float64 `yaml:"a"`
	B    [][]float64 `yaml:"b"`
	C    [][]float64 `yaml:"c,omitempty"`
}

// WeightsConfig configures the quadratic cost weights.
type WeightsConfig struct {
	Q  [][]float64 `yaml:"q"`
	Qf [][]float64 `yaml:"qf"`
	R  [][]float64 `yaml:"r"`
}

// BoundsConfig configures state and input bounds.
// A single value is broadcast to all components; empty bounds leave the vector unbounded.
type BoundsConfig struct {
	StateMin []float64 `yaml:"state_min,omitempty,flow"`
	StateMax []float64 `yaml:"state_max,omitempty,flow"`
	InputMin []float64 `yaml:"input_min,omitempty,flow"`
	InputMax []float64 `yaml:"input_max,omitempty,flow"`
}

// SolverConfig configures the constrained optimizer.
// Zero values select solver defaults.
type SolverConfig struct {
	Method          string  `yaml:"method,omitempty"`
	Penalty         float64 `yaml:"penalty,omitempty"`
	PenaltyGrowth   float64 `yaml:"penalty_growth,omitempty"`
	MaxPenalty      float64 `yaml:"max_penalty,omitempty"`
	OuterIterations int     `yaml:"outer_iterations,omitempty"`
	InnerIterations int     `yaml:"inner_iterations,omitempty"`
	FeasibilityTol  float64 `yaml:"feasibility_tol,omitempty"`
	OptimalityTol   float64 `yaml:"optimality_tol,omitempty"`
}

// NoiseConfig configures zero mean gaussian noise with diagonal covariance.
// Empty covariance disables the noise.
type NoiseConfig struct {
	Cov  []float64 `yaml:"cov,omitempty,flow"`
	Seed uint64    `yaml:"seed,omitempty"`
}

// EstimatorConfig configures the Kalman filter state observer.
// The filter uses disturbance and measurement noise covariances.
type EstimatorConfig struct {
	Enabled   bool      `yaml:"enabled"`
	InitState []float64 `yaml:"init_state,omitempty,flow"`
	InitCov   []float64 `yaml:"init_cov,omitempty,flow"`
}

// Default returns the default configuration: the aircraft pitch preset.
func Default() *Config {
	return pitch()
}

// Load reads configuration from the YAML file at path.
// Values missing in the file are taken from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse parses YAML configuration data.
// Values missing in data are taken from Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to the file at path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks that all the simulation components can be built from c.
func (c *Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("invalid number of steps: %d", c.Steps)
	}

	m, err := c.System()
	if err != nil {
		return err
	}

	if _, err := c.controller(m); err != nil {
		return err
	}

	x0, err := c.State()
	if err != nil {
		return err
	}

	if nx, _, _, _ := m.SystemDims(); x0.Len() != nx {
		return fmt.Errorf("%w: initial state: %d != %d", mpc.ErrDimensionMismatch, x0.Len(), nx)
	}

	if _, err := c.runOptions(m); err != nil {
		return err
	}

	return nil
}

// System builds the discrete plant model.
func (c *Config) System() (*sim.Discrete, error) {
	A, err := dense("A", c.Model.A)
	if err != nil {
		return nil, err
	}

	B, err := dense("B", c.Model.B)
	if err != nil {
		return nil, err
	}

	nx, _ := A.Dims()
	C := matrix.Identity(nx)
	if len(c.Model.C) > 0 {
		if C, err = dense("C", c.Model.C); err != nil {
			return nil, err
		}
	}

	switch c.Model.Type {
	case Discrete, "":
		return sim.NewDiscrete(A, B, C, nil, nil)
	case Continuous:
		ct, err := sim.NewContinuous(A, B, C, nil, nil)
		if err != nil {
			return nil, err
		}
		return ct.ToDiscrete(c.Model.Ts)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", c.Model.Type)
	}
}

// Cost builds the quadratic cost.
func (c *Config) Cost() (*cost.Quadratic, error) {
	Q, err := dense("Q", c.Weights.Q)
	if err != nil {
		return nil, err
	}

	Qf, err := dense("Qf", c.Weights.Qf)
	if err != nil {
		return nil, err
	}

	R, err := dense("R", c.Weights.R)
	if err != nil {
		return nil, err
	}

	if len(c.Reference) == 0 {
		return nil, fmt.Errorf("%w: empty reference", mpc.ErrDimensionMismatch)
	}

	return cost.New(Q, Qf, R, mat.NewVecDense(len(c.Reference), c.Reference))
}

// Constraints builds state and input bounds for a model with nx states and nu inputs.
func (c *Config) Constraints(nx, nu int) (constraint.Bounds, error) {
	var b constraint.Bounds
	var err error

	if b.State, err = box(c.Bounds.StateMin, c.Bounds.StateMax, nx); err != nil {
		return constraint.Bounds{}, fmt.Errorf("state bounds: %w", err)
	}

	if b.Input, err = box(c.Bounds.InputMin, c.Bounds.InputMax, nu); err != nil {
		return constraint.Bounds{}, fmt.Errorf("input bounds: %w", err)
	}

	return b, nil
}

// Optimizer builds the constrained optimizer.
func (c *Config) Optimizer() (*solver.AugLag, error) {
	return solver.NewAugLag(solver.Config{
		Method:          c.Solver.Method,
		Penalty:         c.Solver.Penalty,
		PenaltyGrowth:   c.Solver.PenaltyGrowth,
		MaxPenalty:      c.Solver.MaxPenalty,
		OuterIterations: c.Solver.OuterIterations,
		InnerIterations: c.Solver.InnerIterations,
		FeasibilityTol:  c.Solver.FeasibilityTol,
		OptimalityTol:   c.Solver.OptimalityTol,
	})
}

// Controller builds the MPC controller of the configured model.
func (c *Config) Controller() (*controller.MPC, error) {
	m, err := c.System()
	if err != nil {
		return nil, err
	}

	return c.controller(m)
}

func (c *Config) controller(m *sim.Discrete) (*controller.MPC, error) {
	qc, err := c.Cost()
	if err != nil {
		return nil, err
	}

	nx, nu, _, _ := m.SystemDims()
	b, err := c.Constraints(nx, nu)
	if err != nil {
		return nil, err
	}

	opt, err := c.Optimizer()
	if err != nil {
		return nil, err
	}

	opts := []controller.Option{controller.WithOptimizer(opt)}
	if c.WarmStart {
		opts = append(opts, controller.WithWarmStart())
	}
	if c.Strict {
		opts = append(opts, controller.WithStrict())
	}

	return controller.New(m, qc, b, c.Horizon, opts...)
}

// State returns the initial plant state.
func (c *Config) State() (*mat.VecDense, error) {
	if len(c.InitState) == 0 {
		return nil, fmt.Errorf("%w: empty initial state", mpc.ErrDimensionMismatch)
	}

	return mat.NewVecDense(len(c.InitState), append([]float64(nil), c.InitState...)), nil
}

// RunOptions builds the closed loop options: process disturbance and
// the state estimator fed by noisy measurements.
func (c *Config) RunOptions() ([]closedloop.Option, error) {
	m, err := c.System()
	if err != nil {
		return nil, err
	}

	return c.runOptions(m)
}

func (c *Config) runOptions(m *sim.Discrete) ([]closedloop.Option, error) {
	nx, _, ny, _ := m.SystemDims()

	var opts []closedloop.Option

	wd, err := newNoise(c.Disturbance, nx)
	if err != nil {
		return nil, fmt.Errorf("disturbance: %w", err)
	}
	if wd != nil {
		opts = append(opts, closedloop.WithDisturbance(wd))
	}

	wn, err := newNoise(c.Measurement, ny)
	if err != nil {
		return nil, fmt.Errorf("measurement: %w", err)
	}

	if !c.Estimator.Enabled {
		return opts, nil
	}

	x0 := make([]float64, nx)
	if len(c.Estimator.InitState) > 0 {
		if x0, err = matrix.Broadcast(c.Estimator.InitState, nx); err != nil {
			return nil, fmt.Errorf("%w: estimator initial state: %v", mpc.ErrDimensionMismatch, err)
		}
	}

	p0 := []float64{1}
	if len(c.Estimator.InitCov) > 0 {
		p0 = c.Estimator.InitCov
	}
	p0, err = matrix.Broadcast(p0, nx)
	if err != nil {
		return nil, fmt.Errorf("%w: estimator initial covariance: %v", mpc.ErrDimensionMismatch, err)
	}

	var q, r mpc.Noise
	if wd != nil {
		q = wd
	}
	if wn != nil {
		r = wn
	}

	est, err := kf.New(m, mat.NewVecDense(nx, x0), mat.NewDiagDense(nx, p0), q, r)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	return append(opts, closedloop.WithEstimator(est, r)), nil
}

// Run builds and runs the configured closed loop simulation.
// Additional options are applied after the configured ones.
func (c *Config) Run(ctx context.Context, opts ...closedloop.Option) (*closedloop.Trajectory, error) {
	if c.Steps <= 0 {
		return nil, fmt.Errorf("invalid number of steps: %d", c.Steps)
	}

	m, err := c.System()
	if err != nil {
		return nil, err
	}

	ctrl, err := c.controller(m)
	if err != nil {
		return nil, err
	}

	x0, err := c.State()
	if err != nil {
		return nil, err
	}

	runOpts, err := c.runOptions(m)
	if err != nil {
		return nil, err
	}

	return closedloop.Run(ctx, m, ctrl, x0, c.Steps, append(runOpts, opts...)...)
}

func newNoise(nc NoiseConfig, n int) (*noise.Gaussian, error) {
	if len(nc.Cov) == 0 {
		return nil, nil
	}

	cov, err := matrix.Broadcast(nc.Cov, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mpc.ErrDimensionMismatch, err)
	}

	return noise.NewGaussian(make([]float64, n), mat.NewDiagDense(n, cov), nc.Seed)
}

func box(lower, upper []float64, n int) (*constraint.Box, error) {
	if len(lower) == 0 && len(upper) == 0 {
		return nil, nil
	}

	if len(lower) == 0 {
		lower = []float64{math.Inf(-1)}
	}

	if len(upper) == 0 {
		upper = []float64{math.Inf(1)}
	}

	return constraint.NewBox(lower, upper, n)
}

func dense(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix %s", mpc.ErrDimensionMismatch, name)
	}

	r, c := len(rows), len(rows[0])
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("%w: matrix %s row %d: %d != %d", mpc.ErrDimensionMismatch, name, i, len(row), c)
		}
		data = append(data, row...)
	}

	return mat.NewDense(r, c, data), nil
}

func rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}

	return out
}
