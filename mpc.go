// Package mpc defines the building blocks of linear Model Predictive Control:
// plant models, controllers and the constrained optimizers they delegate to.
package mpc

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Propagator propagates internal state of the system to the next step
type Propagator interface {
	// Propagate propagates internal state of the system to the next step
	Propagate(x, u, wd mat.Vector) (mat.Vector, error)
}

// Observer observes external state (output) of the system
type Observer interface {
	// Observe observes external state of the system
	Observe(x, u, wn mat.Vector) (mat.Vector, error)
}

// Model is a model of a dynamical system
type Model interface {
	// Propagator is system propagator
	Propagator
	// Observer is system observer
	Observer
	// SystemDims returns internal state length (nx), input vector length (nu),
	// output vector length (ny) and disturbance vector length (nz).
	SystemDims() (nx, nu, ny, nz int)
}

// DiscreteModel is a dynamical system whose state is driven by
// static propagation and observation dynamics matrices
type DiscreteModel interface {
	// Model is a model of a dynamical system
	Model
	// SystemMatrix returns state propagation matrix
	SystemMatrix() mat.Matrix
	// ControlMatrix returns state propagation control matrix
	ControlMatrix() mat.Matrix
	// OutputMatrix returns observation matrix
	OutputMatrix() mat.Matrix
	// FeedForwardMatrix returns observation control matrix
	FeedForwardMatrix() mat.Matrix
}

// Controller computes control plans for a dynamical system.
type Controller interface {
	// Compute computes a control plan from the current system state x.
	Compute(ctx context.Context, x mat.Vector) (*Plan, error)
}

// Estimator estimates internal state of the system from its outputs.
type Estimator interface {
	// Estimate corrects the state estimate with measured output y
	// given the input u which was applied to the system.
	Estimate(u, y mat.Vector) (mat.Vector, error)
	// State returns the current state estimate
	State() mat.Vector
}

// Optimizer minimizes a constrained objective function.
type Optimizer interface {
	// Minimize minimizes p starting from x0.
	// It returns the best point found even if the optimizer did not converge;
	// convergence is reported through Solution.Status.
	Minimize(ctx context.Context, p *Problem, x0 []float64) (*Solution, error)
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

// Plan is a control plan computed over the prediction horizon.
type Plan struct {
	// Inputs are the planned inputs u_0..u_{N-1}
	Inputs []*mat.VecDense
	// States are the predicted states x_0..x_{N-1} reached after applying Inputs
	States []*mat.VecDense
	// Cost is the cost of the plan
	Cost float64
	// Solution is the optimizer solution the plan was computed from
	Solution *Solution
}

// Horizon returns the number of planned steps.
func (p *Plan) Horizon() int {
	return len(p.Inputs)
}

// First returns the first planned input: the only one applied to the system.
// It returns nil if the plan is empty.
func (p *Plan) First() *mat.VecDense {
	if len(p.Inputs) == 0 {
		return nil
	}

	u := &mat.VecDense{}
	u.CloneFromVec(p.Inputs[0])

	return u
}

// Converged returns true if the plan was computed by a converged optimizer.
func (p *Plan) Converged() bool {
	return p.Solution != nil && p.Solution.Status == Converged
}
