package sim

import (
	"fmt"

	mpc "github.com/milosgajdos/go-mpc"
	"gonum.org/v1/gonum/mat"
)

// Discrete is a basic model of a linear, discrete-time, dynamical system
type Discrete struct {
	System
}

// NewDiscrete creates a linear discrete-time model based on the control theory equations.
//
//	x[n+1] = A*x[n] + B*u[n] + E*z[n]
//	y[n] = C*x[n] + D*u[n]
//
// The matrices are copied. It returns error if A is not defined
// or if the dimensions of the matrices do not match.
func NewDiscrete(A, B, C, D, E *mat.Dense) (*Discrete, error) {
	sys, err := newSystem(A, B, C, D, E)
	if err != nil {
		return nil, err
	}
	return &Discrete{System: sys}, nil
}

// Propagate returns the next internal state x of a linear, discrete-time
// system given an input vector u and a disturbance wd.
//
// If the model has a disturbance matrix E and wd has its column dimension
// E*wd is added to the state, otherwise wd of the state dimension is added directly.
// It returns error if wd has neither of these dimensions.
func (d *Discrete) Propagate(x, u, wd mat.Vector) (mat.Vector, error) {
	nx, nu, _, nz := d.SystemDims()
	if u != nil && u.Len() != nu {
		return nil, fmt.Errorf("%w: invalid input vector", mpc.ErrDimensionMismatch)
	}

	if x.Len() != nx {
		return nil, fmt.Errorf("%w: invalid state vector", mpc.ErrDimensionMismatch)
	}

	out := mat.NewVecDense(nx, nil)
	out.MulVec(d.A, x)
	if u != nil && d.B != nil {
		outU := mat.NewVecDense(nx, nil)
		outU.MulVec(d.B, u)

		out.AddVec(out, outU)
	}

	if wd != nil {
		switch {
		case d.E != nil && wd.Len() == nz:
			outZ := mat.NewVecDense(nx, nil)
			outZ.MulVec(d.E, wd)
			out.AddVec(out, outZ)
		case wd.Len() == nx:
			out.AddVec(out, wd)
		default:
			return nil, fmt.Errorf("%w: invalid disturbance vector", mpc.ErrDimensionMismatch)
		}
	}

	return out, nil
}
