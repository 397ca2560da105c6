// Package kf implements a linear Kalman filter used as a state observer
// for controllers which only have access to the system output.
package kf

import (
	"fmt"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/matrix"
	"gonum.org/v1/gonum/mat"
)

// KF is Kalman Filter
type KF struct {
	// m is KF system model
	m mpc.DiscreteModel
	// q is state noise a.k.a. process noise
	q mpc.Noise
	// r is output noise a.k.a. measurement noise
	r mpc.Noise
	// x is the current state estimate
	x *mat.VecDense
	// p is the KF covariance matrix
	p *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:  dynamical system model
//   - x0: initial state estimate
//   - p0: initial state estimate covariance
//   - q:  process noise acting directly on the state; may be nil
//   - r:  output noise a.k.a. measurement noise; may be nil
//
// It returns error if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - the initial condition does not match the model state dimension
//   - invalid state or output noise is given: noise covariance must either be nil or match the model dimensions
func New(m mpc.DiscreteModel, x0 mat.Vector, p0 mat.Symmetric, q, r mpc.Noise) (*KF, error) {
	nx, _, ny, _ := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if m.OutputMatrix() == nil {
		return nil, fmt.Errorf("%w: missing observation matrix", mpc.ErrDimensionMismatch)
	}

	if rows, cols := m.OutputMatrix().Dims(); rows != ny || cols != nx {
		return nil, fmt.Errorf("%w: invalid observation matrix dimensions: [%d x %d]", mpc.ErrDimensionMismatch, rows, cols)
	}

	if x0.Len() != nx || p0.SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid initial condition: %d, %d != %d", mpc.ErrDimensionMismatch, x0.Len(), p0.SymmetricDim(), nx)
	}

	if q != nil && q.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid state noise dimension: %d != %d", mpc.ErrDimensionMismatch, q.Cov().SymmetricDim(), nx)
	}

	if r != nil && r.Cov().SymmetricDim() != ny {
		return nil, fmt.Errorf("%w: invalid output noise dimension: %d != %d", mpc.ErrDimensionMismatch, r.Cov().SymmetricDim(), ny)
	}

	p := mat.NewSymDense(nx, nil)
	p.CopySym(p0)

	return &KF{
		m:   m,
		q:   q,
		r:   r,
		x:   mat.VecDenseCopyOf(x0),
		p:   p,
		inn: mat.NewVecDense(ny, nil),
		k:   mat.NewDense(nx, ny, nil),
	}, nil
}

// Predict propagates the state estimate and its covariance to the next step given the input u.
// It returns error if it fails to propagate the state.
func (k *KF) Predict(u mat.Vector) error {
	xNext, err := k.m.Propagate(k.x, u, nil)
	if err != nil {
		return fmt.Errorf("system state propagation failed: %w", err)
	}

	cov := &mat.Dense{}
	cov.Mul(k.m.SystemMatrix(), k.p)
	cov.Mul(cov, k.m.SystemMatrix().T())

	if k.q != nil {
		cov.Add(cov, k.q.Cov())
	}

	k.x.CopyVec(xNext)
	setSym(k.p, cov)

	return nil
}

// Update corrects the predicted state estimate with the measurement y given input u.
// It returns error if either invalid measurement was supplied or if the innovation
// covariance can not be inverted.
func (k *KF) Update(u, y mat.Vector) error {
	nx, _, ny, _ := k.m.SystemDims()

	if y.Len() != ny {
		return fmt.Errorf("%w: invalid measurement dimension: %d != %d", mpc.ErrDimensionMismatch, y.Len(), ny)
	}

	yEst, err := k.m.Observe(k.x, u, nil)
	if err != nil {
		return fmt.Errorf("failed to observe system output: %w", err)
	}

	H := k.m.OutputMatrix()

	// P*H'
	pxy := mat.NewDense(nx, ny, nil)
	pxy.Mul(k.p, H.T())

	// H*P*H' + R
	pyy := mat.NewDense(ny, ny, nil)
	pyy.Mul(H, pxy)
	if k.r != nil {
		pyy.Add(pyy, k.r.Cov())
	}

	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return fmt.Errorf("failed to calculate Pyy inverse: %w", err)
	}

	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	inn := &mat.VecDense{}
	inn.SubVec(y, yEst)

	corr := &mat.VecDense{}
	corr.MulVec(gain, inn)
	k.x.AddVec(k.x, corr)

	// Joseph form update
	a := &mat.Dense{}
	a.Mul(gain, H)
	a.Sub(matrix.Identity(nx), a)

	ap := &mat.Dense{}
	ap.Mul(a, k.p)
	pCorr := &mat.Dense{}
	pCorr.Mul(ap, a.T())

	if k.r != nil {
		// K*R*K'
		kr := &mat.Dense{}
		kr.Mul(gain, k.r.Cov())
		krk := &mat.Dense{}
		krk.Mul(kr, gain.T())
		pCorr.Add(pCorr, krk)
	}

	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	setSym(k.p, pCorr)

	return nil
}

// Estimate runs one step of KF: it propagates the estimate with the input u
// which was applied to the system and corrects it with the measured output y.
// It returns the corrected state estimate.
func (k *KF) Estimate(u, y mat.Vector) (mat.Vector, error) {
	if err := k.Predict(u); err != nil {
		return nil, err
	}

	if err := k.Update(u, y); err != nil {
		return nil, err
	}

	return k.State(), nil
}

// State returns a copy of the current state estimate.
func (k *KF) State() mat.Vector {
	return mat.VecDenseCopyOf(k.x)
}

// Cov returns a copy of the current state estimate covariance.
func (k *KF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// Gain returns Kalman gain
func (k *KF) Gain() mat.Matrix {
	g := &mat.Dense{}
	g.CloneFrom(k.k)

	return g
}

// Innovation returns the last innovation vector
func (k *KF) Innovation() mat.Vector {
	return mat.VecDenseCopyOf(k.inn)
}

// setSym copies the symmetrized m into s.
func setSym(s *mat.SymDense, m mat.Matrix) {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
}
