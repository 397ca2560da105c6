// Package cost implements the quadratic tracking cost of a predictive controller.
package cost

import (
	"fmt"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/matrix"
	"gonum.org/v1/gonum/mat"
)

const symTol = 1e-9

// Quadratic is a quadratic tracking cost over a prediction horizon:
//
//	J = Σ (x_i - r)ᵀQ(x_i - r) + u_iᵀRu_i    i = 0..N-2
//	  + (x_N-1 - r)ᵀQf(x_N-1 - r) + u_N-1ᵀRu_N-1
type Quadratic struct {
	// q is state tracking weight
	q *mat.SymDense
	// qf is terminal state weight
	qf *mat.SymDense
	// r is control effort weight
	r *mat.SymDense
	// ref is the reference state
	ref *mat.VecDense
}

// New creates new quadratic cost and returns it.
// It returns error if either of the following conditions is met:
//   - any of the weight matrices is not square and symmetric
//   - Q, Qf and the reference have different dimensions
func New(Q, Qf, R mat.Matrix, ref mat.Vector) (*Quadratic, error) {
	if Q == nil || Qf == nil || R == nil || ref == nil {
		return nil, fmt.Errorf("weights and reference must be defined")
	}

	q, err := toSym(Q, "Q")
	if err != nil {
		return nil, err
	}

	qf, err := toSym(Qf, "Qf")
	if err != nil {
		return nil, err
	}

	r, err := toSym(R, "R")
	if err != nil {
		return nil, err
	}

	if q.SymmetricDim() != qf.SymmetricDim() || q.SymmetricDim() != ref.Len() {
		return nil, fmt.Errorf("%w: Q: %d, Qf: %d, reference: %d",
			mpc.ErrDimensionMismatch, q.SymmetricDim(), qf.SymmetricDim(), ref.Len())
	}

	return &Quadratic{
		q:   q,
		qf:  qf,
		r:   r,
		ref: mat.VecDenseCopyOf(ref),
	}, nil
}

func toSym(m mat.Matrix, name string) (*mat.SymDense, error) {
	if !matrix.IsSymmetric(m, symTol) {
		r, c := m.Dims()
		return nil, fmt.Errorf("%s must be square symmetric: [%d x %d]", name, r, c)
	}

	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}

	return s, nil
}

// Dims returns state and input dimensions of the cost.
func (c *Quadratic) Dims() (nx, nu int) {
	return c.q.SymmetricDim(), c.r.SymmetricDim()
}

// Ref returns the reference state
func (c *Quadratic) Ref() mat.Vector {
	return mat.VecDenseCopyOf(c.ref)
}

// Stage returns the stage cost of the state x and input u.
func (c *Quadratic) Stage(x, u mat.Vector) float64 {
	return c.term(c.q, x, u)
}

// Terminal returns the terminal cost of the state x and input u.
func (c *Quadratic) Terminal(x, u mat.Vector) float64 {
	return c.term(c.qf, x, u)
}

func (c *Quadratic) term(w mat.Symmetric, x, u mat.Vector) float64 {
	e := mat.NewVecDense(x.Len(), nil)
	e.SubVec(x, c.ref)

	return matrix.QuadForm(e, w) + matrix.QuadForm(u, c.r)
}

// Eval returns the cost of the predicted states X reached by applying inputs U.
// It returns error if X and U have different lengths or if they are empty.
func (c *Quadratic) Eval(X, U []*mat.VecDense) (float64, error) {
	if len(X) == 0 || len(X) != len(U) {
		return 0, fmt.Errorf("%w: states: %d, inputs: %d", mpc.ErrDimensionMismatch, len(X), len(U))
	}

	nx, nu := c.Dims()
	var J float64
	for i := range X {
		if X[i].Len() != nx || U[i].Len() != nu {
			return 0, fmt.Errorf("%w: step %d", mpc.ErrDimensionMismatch, i)
		}

		if i == len(X)-1 {
			J += c.Terminal(X[i], U[i])
			continue
		}
		J += c.Stage(X[i], U[i])
	}

	return J, nil
}

// Stack returns the cost stacked over horizon n so it can be evaluated
// directly on the stacked predicted states and inputs.
func (c *Quadratic) Stack(n int) *Stacked {
	nx, nu := c.Dims()

	blocks := make([]mat.Matrix, n)
	for i := 0; i < n-1; i++ {
		blocks[i] = c.q
	}
	blocks[n-1] = c.qf
	w := matrix.BlockDiag(blocks...)

	rBlocks := make([]mat.Matrix, n)
	for i := range rBlocks {
		rBlocks[i] = c.r
	}
	r := matrix.BlockDiag(rBlocks...)

	ref := mat.NewVecDense(n*nx, nil)
	for i := 0; i < n; i++ {
		ref.SliceVec(i*nx, (i+1)*nx).(*mat.VecDense).CopyVec(c.ref)
	}

	return &Stacked{
		w:   toSymUnchecked(w),
		r:   toSymUnchecked(r),
		ref: ref,
		e:   mat.NewVecDense(n*nx, nil),
		we:  mat.NewVecDense(n*nx, nil),
		nu:  nu,
	}
}

func toSymUnchecked(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}

	return s
}

// Stacked is a quadratic cost stacked over a prediction horizon:
//
//	J = (X - Xr)ᵀW(X - Xr) + UᵀRU
//
// where W is block diagonal with Q blocks and a final Qf block.
// Stacked is not safe for concurrent use.
type Stacked struct {
	w   *mat.SymDense
	r   *mat.SymDense
	ref *mat.VecDense
	// e and we are work vectors
	e  *mat.VecDense
	we *mat.VecDense
	nu int
}

// Eval returns the cost of the stacked predicted states X and inputs U.
func (s *Stacked) Eval(X, U mat.Vector) float64 {
	s.e.SubVec(X, s.ref)

	return matrix.QuadForm(s.e, s.w) + matrix.QuadForm(U, s.r)
}

// Grad stores in grad the gradient of the cost with respect to U
// given the forced response matrix gamma such that X = Phi*x + gamma*U:
//
//	dJ/dU = 2*gammaᵀW(X - Xr) + 2*RU
func (s *Stacked) Grad(grad []float64, X, U mat.Vector, gamma mat.Matrix) {
	s.e.SubVec(X, s.ref)
	s.we.MulVec(s.w, s.e)

	g := mat.NewVecDense(len(grad), grad)
	g.MulVec(gamma.T(), s.we)

	ru := mat.NewVecDense(len(grad), nil)
	ru.MulVec(s.r, U)

	g.AddVec(g, ru)
	g.ScaleVec(2, g)
}
