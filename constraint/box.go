// Package constraint implements box constraints on predicted states and inputs.
package constraint

import (
	"fmt"
	"math"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/matrix"
	"gonum.org/v1/gonum/mat"
)

// Box is a set of independent lower and upper bounds applied per vector component.
// Infinite bounds are allowed and leave the component unconstrained.
type Box struct {
	lower []float64
	upper []float64
}

// NewBox creates new Box of dimension n and returns it.
// A single lower or upper value is broadcast to all n components.
// It returns error if the number of bounds does not match n
// or if any lower bound is greater than its upper bound.
func NewBox(lower, upper []float64, n int) (*Box, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: invalid box dimension: %d", mpc.ErrDimensionMismatch, n)
	}

	lo, err := matrix.Broadcast(lower, n)
	if err != nil {
		return nil, fmt.Errorf("%w: lower bound: %v", mpc.ErrDimensionMismatch, err)
	}

	up, err := matrix.Broadcast(upper, n)
	if err != nil {
		return nil, fmt.Errorf("%w: upper bound: %v", mpc.ErrDimensionMismatch, err)
	}

	for i := range lo {
		if math.IsNaN(lo[i]) || math.IsNaN(up[i]) || lo[i] > up[i] {
			return nil, fmt.Errorf("%w: component %d: [%v, %v]", mpc.ErrInvalidBounds, i, lo[i], up[i])
		}
	}

	return &Box{lower: lo, upper: up}, nil
}

// Dim returns box dimension
func (b *Box) Dim() int {
	return len(b.lower)
}

// Lower returns lower bounds
func (b *Box) Lower() []float64 {
	lo := make([]float64, len(b.lower))
	copy(lo, b.lower)

	return lo
}

// Upper returns upper bounds
func (b *Box) Upper() []float64 {
	up := make([]float64, len(b.upper))
	copy(up, b.upper)

	return up
}

// Violation returns the largest bound violation of v or 0 if v is within the box.
func (b *Box) Violation(v mat.Vector) float64 {
	var viol float64
	for i := 0; i < v.Len() && i < len(b.lower); i++ {
		viol = math.Max(viol, b.lower[i]-v.AtVec(i))
		viol = math.Max(viol, v.AtVec(i)-b.upper[i])
	}

	return viol
}

// Contains returns true if v is within the box extended by tol.
func (b *Box) Contains(v mat.Vector, tol float64) bool {
	return v.Len() == b.Dim() && b.Violation(v) <= tol
}

// Clamp clamps v components to the box.
func (b *Box) Clamp(v *mat.VecDense) {
	for i := 0; i < v.Len() && i < len(b.lower); i++ {
		v.SetVec(i, math.Min(math.Max(v.AtVec(i), b.lower[i]), b.upper[i]))
	}
}

// Bounds are state and input box constraints. Either of them may be nil.
type Bounds struct {
	// State bounds predicted states
	State *Box
	// Input bounds planned inputs
	Input *Box
}

// Violation returns the largest violation of the bounds by states X and inputs U.
func (b Bounds) Violation(X, U []*mat.VecDense) float64 {
	var viol float64
	if b.State != nil {
		for _, x := range X {
			viol = math.Max(viol, b.State.Violation(x))
		}
	}

	if b.Input != nil {
		for _, u := range U {
			viol = math.Max(viol, b.Input.Violation(u))
		}
	}

	return viol
}
