package horizon

import (
	"testing"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newModel(t *testing.T) *sim.Discrete {
	A := mat.NewDense(2, 2, []float64{1.0, 0.1, 0.0, 1.0})
	B := mat.NewDense(2, 1, []float64{0.005, 0.1})

	m, err := sim.NewDiscrete(A, B, nil, nil, nil)
	require.NoError(t, err)

	return m
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	m := newModel(t)

	p, err := New(m, 5)
	assert.NoError(err)
	assert.NotNil(p)
	assert.Equal(5, p.Horizon())
	nx, nu := p.Dims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)

	p, err = New(m, 0)
	assert.Nil(p)
	assert.ErrorIs(err, mpc.ErrInvalidHorizon)

	noCtl, err := sim.NewDiscrete(mat.NewDense(2, 2, nil), nil, nil, nil, nil)
	require.NoError(t, err)
	p, err = New(noCtl, 5)
	assert.Nil(p)
	assert.Error(err)
}

func TestRollout(t *testing.T) {
	assert := assert.New(t)

	m := newModel(t)
	p, err := New(m, 3)
	require.NoError(t, err)

	x := mat.NewVecDense(2, []float64{1.0, 0.0})
	U := []float64{1.0, -1.0, 0.5}

	states, err := p.Rollout(x, U)
	assert.NoError(err)
	assert.Len(states, 3)

	// step by step propagation
	var xi mat.Vector = x
	for i := range states {
		xNext, err := m.Propagate(xi, mat.NewVecDense(1, []float64{U[i]}), nil)
		require.NoError(t, err)
		assert.True(mat.EqualApprox(xNext, states[i], 1e-12))
		xi = xNext
	}

	_, err = p.Rollout(mat.NewVecDense(3, nil), U)
	assert.ErrorIs(err, mpc.ErrDimensionMismatch)

	_, err = p.Rollout(x, U[:2])
	assert.ErrorIs(err, mpc.ErrDimensionMismatch)
}

func TestCondensed(t *testing.T) {
	assert := assert.New(t)

	m := newModel(t)
	p, err := New(m, 4)
	require.NoError(t, err)

	x := mat.NewVecDense(2, []float64{0.3, -0.2})
	U := []float64{0.1, -0.4, 0.7, 0.0}

	states, err := p.Rollout(x, U)
	require.NoError(t, err)

	phi, gamma := p.Condensed()
	r, c := phi.Dims()
	assert.Equal(8, r)
	assert.Equal(2, c)
	r, c = gamma.Dims()
	assert.Equal(8, r)
	assert.Equal(4, c)

	// Gamma is lower block triangular
	assert.Equal(0.0, gamma.At(0, 1))
	assert.Equal(0.0, gamma.At(1, 3))

	X := mat.NewVecDense(8, nil)
	X.MulVec(gamma, mat.NewVecDense(4, U))
	free, err := p.Free(x)
	require.NoError(t, err)
	X.AddVec(X, free)

	assert.InDeltaSlice(Stack(states), X.RawVector().Data, 1e-12)

	_, err = p.Free(mat.NewVecDense(1, nil))
	assert.Error(err)
}

func TestSplitStack(t *testing.T) {
	assert := assert.New(t)

	seq := []float64{1, 2, 3, 4, 5, 6}
	vecs := Split(seq, 2)
	assert.Len(vecs, 3)
	assert.Equal(3.0, vecs[1].AtVec(0))

	// no shared storage
	seq[0] = 10
	assert.Equal(1.0, vecs[0].AtVec(0))

	assert.Equal([]float64{1, 2, 3, 4, 5, 6}, Stack(vecs))
	assert.Nil(Split(seq, 0))
}

func TestShift(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]float64{2, 3, 3}, Shift([]float64{1, 2, 3}, 1))
	assert.Equal([]float64{3, 4, 5, 6, 5, 6}, Shift([]float64{1, 2, 3, 4, 5, 6}, 2))
	assert.Equal([]float64{1}, Shift([]float64{1}, 1))
	assert.Equal([]float64{1, 2}, Shift([]float64{1, 2}, 0))
}
