package mpc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Problem is a smooth minimization problem with inequality constraints:
//
//	minimize f(x) subject to c(x) >= 0
type Problem struct {
	// Dim is the number of optimization variables
	Dim int
	// Func evaluates the objective function f at x
	Func func(x []float64) float64
	// Grad evaluates the gradient of f at x and stores it in grad
	Grad func(grad, x []float64)
	// NumIneq is the number of inequality constraints
	NumIneq int
	// Ineq evaluates the inequality constraints at x and stores them in dst
	Ineq func(dst, x []float64)
	// IneqJac evaluates the NumIneq x Dim Jacobian of Ineq at x and stores it in dst
	IneqJac func(dst *mat.Dense, x []float64)
}

// Validate checks that the problem is fully defined.
func (p *Problem) Validate() error {
	if p.Dim <= 0 {
		return fmt.Errorf("%w: problem dimension %d", ErrDimensionMismatch, p.Dim)
	}

	if p.Func == nil || p.Grad == nil {
		return fmt.Errorf("objective function and gradient must be defined")
	}

	if p.NumIneq < 0 {
		return fmt.Errorf("%w: %d inequality constraints", ErrDimensionMismatch, p.NumIneq)
	}

	if p.NumIneq > 0 && (p.Ineq == nil || p.IneqJac == nil) {
		return fmt.Errorf("inequality constraints and their Jacobian must be defined")
	}

	return nil
}

// Status is the termination status of an optimizer
type Status int

const (
	// Converged means the optimizer found a feasible point satisfying its optimality tolerance
	Converged Status = iota
	// IterationLimit means the optimizer ran out of iterations
	IterationLimit
	// Infeasible means the best point found violates the constraints
	Infeasible
	// Failed means the optimizer could not make progress from the initial point
	Failed
)

// String implements the Stringer interface.
func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case IterationLimit:
		return "iteration-limit"
	case Infeasible:
		return "infeasible"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// OK returns true if the status reports convergence.
func (s Status) OK() bool {
	return s == Converged
}

// Solution is the result of a constrained minimization
type Solution struct {
	// X is the best point found
	X []float64
	// F is the objective value at X
	F float64
	// Status is the optimizer termination status
	Status Status
	// Iterations is the number of outer optimizer iterations
	Iterations int
	// Evaluations is the number of objective function evaluations
	Evaluations int
	// Violation is the largest constraint violation at X
	Violation float64
}
