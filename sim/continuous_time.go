package sim

import (
	"fmt"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// DefaultC2DSteps is the default number of integration intervals used by
// ToDiscrete when the system matrix is singular.
const DefaultC2DSteps = 100

// Continuous is a basic model of a linear, continuous-time, dynamical system
type Continuous struct {
	System
	// C2DSteps is the number of integration intervals ToDiscrete uses when A is singular
	C2DSteps int
}

// NewContinuous creates a linear continuous-time model based on the control theory equations
// which is advanced by timestep dt.
//
//	dx/dt = A*x + B*u + E*z
//	y = C*x + D*u
func NewContinuous(A, B, C, D, E *mat.Dense) (*Continuous, error) {
	sys, err := newSystem(A, B, C, D, E)
	if err != nil {
		return nil, err
	}
	return &Continuous{System: sys, C2DSteps: DefaultC2DSteps}, nil
}

// ToDiscrete creates a discrete-time model from a continuous time model
// using Ts as the sampling time.
//
// The state matrix is discretized exactly using matrix exponential and the
// control matrix assuming zero-order hold on the input.
func (ct *Continuous) ToDiscrete(Ts float64) (*Discrete, error) {
	if Ts <= 0 {
		return nil, fmt.Errorf("invalid sampling time: %v", Ts)
	}

	nx, _, _, _ := ct.SystemDims()
	dsys, err := newSystem(ct.A, ct.B, ct.C, ct.D, ct.E)
	if err != nil {
		return nil, err
	}
	// continuous -> discrete time conversion
	// See Discrete-Time Control Systems by Katsuhiko Ogata
	// Eq. (5-73) p. 315  Second Edition (Spanish)
	dsys.A.Scale(Ts, dsys.A)
	dsys.A.Exp(dsys.A)

	if dsys.B == nil {
		return &Discrete{dsys}, nil
	}

	Aaux := mat.NewDense(nx, nx, nil)
	// Given A is not singular, the following is valid
	// Bd(Ts) = (exp(A*Ts) - I)*inv(A)*B  Eq. (5-74 bis) Ogata
	eye, err := matrix.NewDenseValIdentity(nx, 1.0)
	if err != nil {
		return nil, err
	}

	Ainv := mat.NewDense(nx, nx, nil)
	if err := Ainv.Inverse(ct.A); err == nil {
		Aaux.Sub(dsys.A, eye)
		Aaux.Mul(Aaux, Ainv)
		dsys.B.Mul(Aaux, ct.B)
		return &Discrete{dsys}, nil
	}

	// if A matrix is singular we integrate with trapezoidal rule from 0 to Ts
	// Bd = integrate( exp(A*t)dt, 0, Ts ) * B   Eq. (5-74) Ogata
	n := ct.C2DSteps
	if n <= 0 {
		n = DefaultC2DSteps
	}
	dt := Ts / float64(n)
	Asum := mat.NewDense(nx, nx, nil)
	for i := 0; i <= n; i++ {
		Aaux.Scale(dt*float64(i), ct.A)
		Aaux.Exp(Aaux)
		w := dt
		if i == 0 || i == n {
			w = dt / 2
		}
		Aaux.Scale(w, Aaux)
		Asum.Add(Asum, Aaux)
	}
	dsys.B.Mul(Asum, ct.B)

	return &Discrete{dsys}, nil
}

// Propagate returns the next internal state x of a linear, continuous-time system
// given an input vector u and a disturbance wd. It integrates the first order
// derivatives with a single Euler step of length dt.
// It returns error if wd matches neither the disturbance nor the state dimension.
func (ct *Continuous) Propagate(x, u, wd mat.Vector, dt float64) (mat.Vector, error) {
	nx, nu, _, nz := ct.SystemDims()
	if u != nil && u.Len() != nu {
		return nil, fmt.Errorf("%w: invalid input vector", mpc.ErrDimensionMismatch)
	}

	if x.Len() != nx {
		return nil, fmt.Errorf("%w: invalid state vector", mpc.ErrDimensionMismatch)
	}

	out := mat.NewVecDense(nx, nil)
	out.MulVec(ct.A, x)
	if u != nil && ct.B != nil {
		outU := mat.NewVecDense(nx, nil)
		outU.MulVec(ct.B, u)

		out.AddVec(out, outU)
	}

	if wd != nil {
		switch {
		case ct.E != nil && wd.Len() == nz:
			outZ := mat.NewVecDense(nx, nil)
			outZ.MulVec(ct.E, wd)
			out.AddVec(out, outZ)
		case wd.Len() == nx:
			out.AddVec(out, wd)
		default:
			return nil, fmt.Errorf("%w: invalid disturbance vector", mpc.ErrDimensionMismatch)
		}
	}

	// dx/dt = A*x + B*u + wd
	out.AddScaledVec(x, dt, out)

	return out, nil
}
