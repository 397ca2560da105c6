// Package closedloop runs receding-horizon controllers against plant models.
package closedloop

import (
	"context"
	"errors"
	"fmt"
	"math"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/noise"
	"gonum.org/v1/gonum/mat"
)

// Option configures a closed loop run
type Option func(*loop)

// WithDisturbance adds process noise sampled from n to every plant step.
// Without it the plant is driven by zero noise.
func WithDisturbance(n mpc.Noise) Option {
	return func(l *loop) {
		l.wd = n
	}
}

// WithEstimator closes the loop through the plant output: the controller
// is fed the estimate of est which is corrected with the plant output
// perturbed by the measurement noise wn after every step. wn may be nil.
func WithEstimator(est mpc.Estimator, wn mpc.Noise) Option {
	return func(l *loop) {
		l.est = est
		l.wn = wn
	}
}

// WithStepFunc registers fn to be called after every step.
// The run stops with the returned error if fn returns one.
func WithStepFunc(fn func(Step) error) Option {
	return func(l *loop) {
		l.onStep = fn
	}
}

// Step is a single closed loop step
type Step struct {
	// Index is the step index
	Index int
	// State is the state the step started from
	State mat.Vector
	// Input is the applied input
	Input mat.Vector
	// Next is the state the step ended in
	Next mat.Vector
	// Plan is the plan the input was taken from
	Plan *mpc.Plan
}

type loop struct {
	wd     mpc.Noise
	wn     mpc.Noise
	est    mpc.Estimator
	onStep func(Step) error
}

// Run runs the controller ctrl against the plant for the given number of steps
// starting from the state x0 and returns the recorded trajectory.
//
// At every step the controller computes a plan from the current state (or its
// estimate), only the first planned input is applied to the plant and the plant
// is advanced to the next state. Plans computed by a non-converged optimizer are
// applied and recorded with their status.
//
// Run returns the trajectory recorded so far along with the error if the
// controller or the plant fail; such errors are wrapped in mpc.StepError.
func Run(ctx context.Context, plant mpc.Model, ctrl mpc.Controller, x0 mat.Vector, steps int, opts ...Option) (*Trajectory, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("invalid number of steps: %d", steps)
	}

	nx, _, _, _ := plant.SystemDims()
	if x0.Len() != nx {
		return nil, fmt.Errorf("%w: initial state: %d != %d", mpc.ErrDimensionMismatch, x0.Len(), nx)
	}

	l := &loop{}
	for _, o := range opts {
		o(l)
	}

	if l.wd == nil {
		zero, err := noise.NewZero(nx)
		if err != nil {
			return nil, err
		}
		l.wd = zero
	}

	traj := &Trajectory{
		States: make([]*mat.VecDense, 0, steps+1),
		Inputs: make([]*mat.VecDense, 0, steps),
		Plans:  make([]*mpc.Plan, 0, steps),
	}

	x := mat.VecDenseCopyOf(x0)
	traj.States = append(traj.States, x)

	var xc mat.Vector = x
	if l.est != nil {
		xc = l.est.State()
		traj.Estimates = append(traj.Estimates, mat.VecDenseCopyOf(xc))
	}

	for k := 0; k < steps; k++ {
		select {
		case <-ctx.Done():
			return traj, ctx.Err()
		default:
		}

		plan, err := ctrl.Compute(ctx, xc)
		if err != nil {
			if plan != nil && errors.Is(err, mpc.ErrNotConverged) {
				traj.Plans = append(traj.Plans, plan)
			}
			return traj, &mpc.StepError{Step: k, State: mat.VecDenseCopyOf(x), Wrapped: err}
		}

		u := plan.First()
		if u == nil {
			return traj, &mpc.StepError{Step: k, State: mat.VecDenseCopyOf(x), Wrapped: fmt.Errorf("empty plan")}
		}

		next, err := plant.Propagate(x, u, l.wd.Sample())
		if err != nil {
			return traj, &mpc.StepError{Step: k, State: mat.VecDenseCopyOf(x), Wrapped: err}
		}

		xNext := mat.VecDenseCopyOf(next)
		if !isValid(xNext) {
			return traj, &mpc.StepError{Step: k, State: mat.VecDenseCopyOf(x), Wrapped: mpc.ErrInvalidState}
		}

		traj.Plans = append(traj.Plans, plan)
		traj.Inputs = append(traj.Inputs, u)
		traj.States = append(traj.States, xNext)

		if l.est != nil {
			var wn mat.Vector
			if l.wn != nil {
				wn = l.wn.Sample()
			}

			y, err := plant.Observe(xNext, u, wn)
			if err != nil {
				return traj, &mpc.StepError{Step: k, State: xNext, Wrapped: err}
			}

			xc, err = l.est.Estimate(u, y)
			if err != nil {
				return traj, &mpc.StepError{Step: k, State: xNext, Wrapped: err}
			}
			traj.Estimates = append(traj.Estimates, mat.VecDenseCopyOf(xc))
		} else {
			xc = xNext
		}

		if l.onStep != nil {
			if err := l.onStep(Step{Index: k, State: x, Input: u, Next: xNext, Plan: plan}); err != nil {
				return traj, &mpc.StepError{Step: k, State: xNext, Wrapped: err}
			}
		}

		x = xNext
	}

	return traj, nil
}

func isValid(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		if math.IsNaN(v.AtVec(i)) || math.IsInf(v.AtVec(i), 0) {
			return false
		}
	}
	return true
}
