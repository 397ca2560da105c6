package cost

import (
	"testing"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/horizon"
	"github.com/milosgajdos/go-mpc/matrix"
	"github.com/milosgajdos/go-mpc/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func newCost(t *testing.T) *Quadratic {
	c, err := New(
		matrix.ScaledIdentity(2, 2.0),
		matrix.ScaledIdentity(2, 10.0),
		mat.NewDense(1, 1, []float64{0.5}),
		mat.NewVecDense(2, []float64{1.0, 0.0}),
	)
	require.NoError(t, err)

	return c
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	Q := matrix.Identity(2)
	R := matrix.Identity(1)
	ref := mat.NewVecDense(2, nil)

	c, err := New(Q, Q, R, ref)
	assert.NoError(err)
	assert.NotNil(c)
	nx, nu := c.Dims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)

	// asymmetric weight
	c, err = New(mat.NewDense(2, 2, []float64{1, 1, 0, 1}), Q, R, ref)
	assert.Nil(c)
	assert.Error(err)

	// non-square weight
	c, err = New(Q, Q, mat.NewDense(1, 2, nil), ref)
	assert.Nil(c)
	assert.Error(err)

	// reference dimension
	c, err = New(Q, Q, R, mat.NewVecDense(3, nil))
	assert.Nil(c)
	assert.ErrorIs(err, mpc.ErrDimensionMismatch)

	c, err = New(nil, Q, R, ref)
	assert.Nil(c)
	assert.Error(err)
}

func TestEval(t *testing.T) {
	assert := assert.New(t)

	c := newCost(t)

	X := []*mat.VecDense{
		mat.NewVecDense(2, []float64{0.0, 1.0}),
		mat.NewVecDense(2, []float64{2.0, 0.0}),
	}
	U := []*mat.VecDense{
		mat.NewVecDense(1, []float64{2.0}),
		mat.NewVecDense(1, []float64{-1.0}),
	}

	// stage: 2*(1+1) + 0.5*4 = 6, terminal: 10*1 + 0.5*1 = 10.5
	J, err := c.Eval(X, U)
	assert.NoError(err)
	assert.InDelta(16.5, J, 1e-12)

	assert.InDelta(6.0, c.Stage(X[0], U[0]), 1e-12)
	assert.InDelta(10.5, c.Terminal(X[1], U[1]), 1e-12)

	_, err = c.Eval(X, U[:1])
	assert.Error(err)

	_, err = c.Eval(nil, nil)
	assert.Error(err)

	_, err = c.Eval([]*mat.VecDense{mat.NewVecDense(3, nil)}, U[:1])
	assert.ErrorIs(err, mpc.ErrDimensionMismatch)
}

func TestStacked(t *testing.T) {
	assert := assert.New(t)

	c := newCost(t)

	A := mat.NewDense(2, 2, []float64{1.0, 0.1, 0.0, 1.0})
	B := mat.NewDense(2, 1, []float64{0.005, 0.1})
	m, err := sim.NewDiscrete(A, B, nil, nil, nil)
	require.NoError(t, err)

	n := 4
	p, err := horizon.New(m, n)
	require.NoError(t, err)

	x := mat.NewVecDense(2, []float64{-0.5, 0.2})
	U := []float64{0.3, -0.1, 0.8, -0.6}

	states, err := p.Rollout(x, U)
	require.NoError(t, err)

	J, err := c.Eval(states, horizon.Split(U, 1))
	require.NoError(t, err)

	s := c.Stack(n)
	X := mat.NewVecDense(n*2, horizon.Stack(states))
	assert.InDelta(J, s.Eval(X, mat.NewVecDense(n, U)), 1e-9)

	free, err := p.Free(x)
	require.NoError(t, err)
	gamma := p.Gamma()

	f := func(u []float64) float64 {
		X := mat.NewVecDense(n*2, nil)
		X.MulVec(gamma, mat.NewVecDense(n, u))
		X.AddVec(X, free)
		return s.Eval(X, mat.NewVecDense(n, u))
	}

	expGrad := fd.Gradient(nil, f, U, &fd.Settings{Formula: fd.Central})

	grad := make([]float64, n)
	s.Grad(grad, X, mat.NewVecDense(n, U), gamma)
	assert.InDeltaSlice(expGrad, grad, 1e-5)
}
