// Package controller implements a linear receding-horizon (model predictive) controller.
package controller

import (
	"context"
	"fmt"
	"math"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/constraint"
	"github.com/milosgajdos/go-mpc/cost"
	"github.com/milosgajdos/go-mpc/horizon"
	"github.com/milosgajdos/go-mpc/solver"
	"gonum.org/v1/gonum/mat"
)

// Option configures MPC
type Option func(*MPC) error

// WithOptimizer sets the constrained optimizer used to compute plans.
func WithOptimizer(o mpc.Optimizer) Option {
	return func(c *MPC) error {
		if o == nil {
			return fmt.Errorf("invalid optimizer")
		}
		c.opt = o
		return nil
	}
}

// WithInitialGuess sets the input sequence every optimization is seeded from.
// The N inputs are stored one after another.
func WithInitialGuess(U []float64) Option {
	return func(c *MPC) error {
		_, nu := c.pred.Dims()
		if len(U) != c.pred.Horizon()*nu {
			return fmt.Errorf("%w: initial guess: %d", mpc.ErrDimensionMismatch, len(U))
		}
		copy(c.guess, U)
		return nil
	}
}

// WithWarmStart seeds every optimization with the previous plan shifted by one step.
func WithWarmStart() Option {
	return func(c *MPC) error {
		c.warm = true
		return nil
	}
}

// WithStrict makes Compute return ErrNotConverged along with the plan
// whenever the optimizer does not converge.
func WithStrict() Option {
	return func(c *MPC) error {
		c.strict = true
		return nil
	}
}

// MPC is a linear receding-horizon controller.
//
// At every call to Compute it minimizes the quadratic cost of the input sequence
// over the prediction horizon subject to the state and input bounds, starting
// from the current state. Only the first input of the returned plan is meant
// to be applied to the system.
//
// MPC is not safe for concurrent use.
type MPC struct {
	// pred predicts the states over the horizon
	pred *horizon.Predictor
	// cost is the cost of the plan
	cost *cost.Quadratic
	// stacked is cost stacked over the horizon
	stacked *cost.Stacked
	// cons are the constraints over the horizon
	cons *constraint.Set
	// bounds are the state and input bounds
	bounds constraint.Bounds
	// jac is the constant constraints Jacobian
	jac *mat.Dense
	// opt is the constrained optimizer
	opt mpc.Optimizer
	// guess is the initial guess
	guess []float64
	// prev is the previous optimal input sequence
	prev []float64
	// warm enables warm start
	warm bool
	// strict fails on non-converged optimizations
	strict bool
}

// New creates new MPC and returns it.
// It accepts the following parameters:
//   - m:      discrete model of the controlled system
//   - c:      quadratic cost
//   - b:      state and input bounds
//   - n:      prediction horizon
//   - opts:   controller options
//
// The default optimizer is solver.AugLag with default configuration
// and the default initial guess is a sequence of zero inputs.
// It returns error if the dimensions of the model, cost and bounds do not match.
func New(m mpc.DiscreteModel, c *cost.Quadratic, b constraint.Bounds, n int, opts ...Option) (*MPC, error) {
	if m == nil || c == nil {
		return nil, fmt.Errorf("model and cost must be defined")
	}

	pred, err := horizon.New(m, n)
	if err != nil {
		return nil, err
	}

	nx, nu := pred.Dims()
	if cx, cu := c.Dims(); cx != nx || cu != nu {
		return nil, fmt.Errorf("%w: model: [%d x %d], cost: [%d x %d]", mpc.ErrDimensionMismatch, nx, nu, cx, cu)
	}

	cons, err := constraint.NewSet(b, n, nx, nu)
	if err != nil {
		return nil, err
	}

	opt, err := solver.NewAugLag(solver.DefaultConfig())
	if err != nil {
		return nil, err
	}

	ctrl := &MPC{
		pred:    pred,
		cost:    c,
		stacked: c.Stack(n),
		cons:    cons,
		bounds:  b,
		jac:     cons.Jacobian(pred.Gamma()),
		opt:     opt,
		guess:   make([]float64, n*nu),
	}

	for _, o := range opts {
		if err := o(ctrl); err != nil {
			return nil, err
		}
	}

	return ctrl, nil
}

// Horizon returns prediction horizon
func (c *MPC) Horizon() int {
	return c.pred.Horizon()
}

// Bounds returns controller bounds
func (c *MPC) Bounds() constraint.Bounds {
	return c.bounds
}

// Reset discards the previous plan used for warm start.
func (c *MPC) Reset() {
	c.prev = nil
}

// Problem returns the optimization problem solved for the state x:
// the cost of the stacked input sequence subject to the bounds on the
// inputs and the states predicted from x.
func (c *MPC) Problem(x mat.Vector) (*mpc.Problem, error) {
	free, err := c.pred.Free(x)
	if err != nil {
		return nil, err
	}

	n := c.pred.Horizon()
	nx, nu := c.pred.Dims()
	gamma := c.pred.Gamma()

	X := mat.NewVecDense(n*nx, nil)
	predict := func(u []float64) (*mat.VecDense, *mat.VecDense) {
		U := mat.NewVecDense(n*nu, u)
		X.MulVec(gamma, U)
		X.AddVec(X, free)
		return X, U
	}

	p := &mpc.Problem{
		Dim: n * nu,
		Func: func(u []float64) float64 {
			X, U := predict(u)
			return c.stacked.Eval(X, U)
		},
		Grad: func(grad, u []float64) {
			X, U := predict(u)
			c.stacked.Grad(grad, X, U, gamma)
		},
		NumIneq: c.cons.Len(),
	}

	if c.cons.Len() > 0 {
		p.Ineq = func(dst, u []float64) {
			X, U := predict(u)
			c.cons.Eval(dst, X, U)
		}
		p.IneqJac = func(dst *mat.Dense, _ []float64) {
			dst.Copy(c.jac)
		}
	}

	return p, nil
}

// Compute computes the optimal plan from the state x.
//
// Non-converged optimizations still return the best plan found with its inputs
// clamped to the input bounds; its status is available in Plan.Solution. If the controller is strict Compute also
// returns ErrNotConverged. It returns error if x is invalid or if the
// optimization could not be carried out.
func (c *MPC) Compute(ctx context.Context, x mat.Vector) (*mpc.Plan, error) {
	nx, nu := c.pred.Dims()
	if x == nil || x.Len() != nx {
		return nil, fmt.Errorf("%w: invalid state vector", mpc.ErrDimensionMismatch)
	}

	for i := 0; i < x.Len(); i++ {
		if math.IsNaN(x.AtVec(i)) || math.IsInf(x.AtVec(i), 0) {
			return nil, mpc.ErrInvalidState
		}
	}

	p, err := c.Problem(x)
	if err != nil {
		return nil, err
	}

	x0 := make([]float64, len(c.guess))
	copy(x0, c.guess)
	if c.warm && c.prev != nil {
		x0 = horizon.Shift(c.prev, nu)
	}

	sol, err := c.opt.Minimize(ctx, p, x0)
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	inputs := horizon.Split(sol.X, nu)
	if !sol.Status.OK() && c.bounds.Input != nil {
		// saturate inputs of a non-converged plan to the actuator limits
		for _, u := range inputs {
			c.bounds.Input.Clamp(u)
		}
	}
	U := horizon.Stack(inputs)

	states, err := c.pred.Rollout(x, U)
	if err != nil {
		return nil, err
	}

	J, err := c.cost.Eval(states, inputs)
	if err != nil {
		return nil, err
	}

	if c.warm {
		c.prev = U
	}

	plan := &mpc.Plan{
		Inputs:   inputs,
		States:   states,
		Cost:     J,
		Solution: sol,
	}

	if c.strict && !sol.Status.OK() {
		return plan, fmt.Errorf("%w: %s", mpc.ErrNotConverged, sol.Status)
	}

	return plan, nil
}
