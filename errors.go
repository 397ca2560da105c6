package mpc

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch indicates mismatched vector or matrix dimensions.
	ErrDimensionMismatch = errors.New("mpc: dimension mismatch")
	// ErrInvalidHorizon indicates a non-positive prediction horizon.
	ErrInvalidHorizon = errors.New("mpc: invalid prediction horizon")
	// ErrInvalidBounds indicates a lower bound greater than its upper bound.
	ErrInvalidBounds = errors.New("mpc: invalid bounds")
	// ErrInvalidState indicates a state containing NaN or Inf values.
	ErrInvalidState = errors.New("mpc: invalid state (NaN or Inf detected)")
	// ErrNotConverged indicates the optimizer did not converge.
	ErrNotConverged = errors.New("mpc: optimizer did not converge")
)

// StepError wraps an error with the closed loop step it occurred at.
type StepError struct {
	Step    int
	State   mat.Vector
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
