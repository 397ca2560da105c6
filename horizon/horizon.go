// Package horizon predicts state trajectories of linear models over a finite horizon.
package horizon

import (
	"fmt"

	mpc "github.com/milosgajdos/go-mpc"
	"gonum.org/v1/gonum/mat"
)

// Predictor predicts the state evolution of a discrete linear model
// over a fixed horizon for a candidate input sequence.
//
// The i-th predicted state is the state reached after applying the i-th input:
//
//	x_0 = A*x + B*u_0
//	x_i = A*x_{i-1} + B*u_i
type Predictor struct {
	// m is the model used for prediction
	m mpc.DiscreteModel
	// n is the prediction horizon
	n int
	// nx is the state dimension
	nx int
	// nu is the input dimension
	nu int
	// phi is the free response matrix
	phi *mat.Dense
	// gamma is the forced response matrix
	gamma *mat.Dense
}

// New creates new Predictor for model m and horizon n and returns it.
// It returns error if n is non-positive or if the model has no inputs.
func New(m mpc.DiscreteModel, n int) (*Predictor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", mpc.ErrInvalidHorizon, n)
	}

	nx, nu, _, _ := m.SystemDims()
	if nx <= 0 || nu <= 0 {
		return nil, fmt.Errorf("%w: invalid model dimensions: [%d x %d]", mpc.ErrDimensionMismatch, nx, nu)
	}

	if m.ControlMatrix() == nil {
		return nil, fmt.Errorf("control matrix must be defined for prediction")
	}

	p := &Predictor{
		m:  m,
		n:  n,
		nx: nx,
		nu: nu,
	}
	p.phi, p.gamma = p.condense()

	return p, nil
}

// condense builds the stacked prediction X = Phi*x + Gamma*U where
// Phi block i is A^(i+1) and Gamma block (i,j) is A^(i-j)*B for j <= i.
func (p *Predictor) condense() (*mat.Dense, *mat.Dense) {
	A := p.m.SystemMatrix()
	B := p.m.ControlMatrix()

	phi := mat.NewDense(p.n*p.nx, p.nx, nil)
	gamma := mat.NewDense(p.n*p.nx, p.n*p.nu, nil)

	// powA is A^(i+1), powAB is A^i*B
	powA := mat.DenseCopyOf(A)
	powAB := mat.DenseCopyOf(B)
	for i := 0; i < p.n; i++ {
		phi.Slice(i*p.nx, (i+1)*p.nx, 0, p.nx).(*mat.Dense).Copy(powA)
		for j := 0; j+i < p.n; j++ {
			row := (i + j) * p.nx
			gamma.Slice(row, row+p.nx, j*p.nu, (j+1)*p.nu).(*mat.Dense).Copy(powAB)
		}
		powA.Mul(A, powA)
		powAB.Mul(A, powAB)
	}

	return phi, gamma
}

// Horizon returns prediction horizon.
func (p *Predictor) Horizon() int {
	return p.n
}

// Dims returns the state and input dimensions.
func (p *Predictor) Dims() (nx, nu int) {
	return p.nx, p.nu
}

// Model returns the prediction model.
func (p *Predictor) Model() mpc.DiscreteModel {
	return p.m
}

// Rollout simulates the model from state x over the horizon driven by
// the input sequence U which stores the N inputs one after another.
// It returns the N predicted states.
func (p *Predictor) Rollout(x mat.Vector, U []float64) ([]*mat.VecDense, error) {
	if x.Len() != p.nx {
		return nil, fmt.Errorf("%w: invalid state vector: %d", mpc.ErrDimensionMismatch, x.Len())
	}

	if len(U) != p.n*p.nu {
		return nil, fmt.Errorf("%w: invalid input sequence: %d", mpc.ErrDimensionMismatch, len(U))
	}

	states := make([]*mat.VecDense, p.n)
	var xi mat.Vector = x
	for i := 0; i < p.n; i++ {
		ui := mat.NewVecDense(p.nu, U[i*p.nu:(i+1)*p.nu])
		xNext, err := p.m.Propagate(xi, ui, nil)
		if err != nil {
			return nil, fmt.Errorf("prediction step %d failed: %w", i, err)
		}
		states[i] = mat.VecDenseCopyOf(xNext)
		xi = states[i]
	}

	return states, nil
}

// Condensed returns copies of the free response matrix Phi and the forced
// response matrix Gamma such that the stacked predicted states are X = Phi*x + Gamma*U.
func (p *Predictor) Condensed() (phi, gamma *mat.Dense) {
	return mat.DenseCopyOf(p.phi), mat.DenseCopyOf(p.gamma)
}

// Gamma returns the forced response matrix. It must not be modified.
func (p *Predictor) Gamma() mat.Matrix {
	return p.gamma
}

// Free returns the stacked free response Phi*x of the model from state x.
func (p *Predictor) Free(x mat.Vector) (*mat.VecDense, error) {
	if x.Len() != p.nx {
		return nil, fmt.Errorf("%w: invalid state vector: %d", mpc.ErrDimensionMismatch, x.Len())
	}

	free := mat.NewVecDense(p.n*p.nx, nil)
	free.MulVec(p.phi, x)

	return free, nil
}

// Split splits the stacked sequence seq into vectors of length dim.
// The returned vectors do not share seq storage.
func Split(seq []float64, dim int) []*mat.VecDense {
	if dim <= 0 {
		return nil
	}

	out := make([]*mat.VecDense, len(seq)/dim)
	for i := range out {
		data := make([]float64, dim)
		copy(data, seq[i*dim:(i+1)*dim])
		out[i] = mat.NewVecDense(dim, data)
	}

	return out
}

// Stack stacks vecs into a single slice.
func Stack(vecs []*mat.VecDense) []float64 {
	var out []float64
	for _, v := range vecs {
		for i := 0; i < v.Len(); i++ {
			out = append(out, v.AtVec(i))
		}
	}

	return out
}

// Shift shifts the input sequence U of inputs of length nu by one step:
// it drops the first input and repeats the last one.
// The result is used to warm start the next optimization.
func Shift(U []float64, nu int) []float64 {
	out := make([]float64, len(U))
	if nu <= 0 || len(U) < nu {
		copy(out, U)
		return out
	}

	copy(out, U[nu:])
	copy(out[len(U)-nu:], U[len(U)-nu:])

	return out
}
