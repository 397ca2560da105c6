package constraint

import (
	"math"
	"testing"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/horizon"
	"github.com/milosgajdos/go-mpc/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func TestNewBox(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		lower []float64
		upper []float64
		n     int
		err   error
	}{
		{lower: []float64{-1}, upper: []float64{1}, n: 3},
		{lower: []float64{-1, -2}, upper: []float64{1, math.Inf(1)}, n: 2},
		{lower: []float64{-1, -2}, upper: []float64{1}, n: 3, err: mpc.ErrDimensionMismatch},
		{lower: []float64{2}, upper: []float64{1}, n: 1, err: mpc.ErrInvalidBounds},
		{lower: []float64{math.NaN()}, upper: []float64{1}, n: 1, err: mpc.ErrInvalidBounds},
		{lower: []float64{-1}, upper: []float64{1}, n: 0, err: mpc.ErrDimensionMismatch},
	} {
		b, err := NewBox(test.lower, test.upper, test.n)
		if test.err != nil {
			assert.Nil(b)
			assert.ErrorIs(err, test.err)
			continue
		}
		assert.NoError(err)
		assert.Equal(test.n, b.Dim())
		assert.Len(b.Lower(), test.n)
		assert.Len(b.Upper(), test.n)
	}
}

func TestBox(t *testing.T) {
	assert := assert.New(t)

	b, err := NewBox([]float64{-1}, []float64{1}, 2)
	require.NoError(t, err)

	in := mat.NewVecDense(2, []float64{0.5, -1.0})
	out := mat.NewVecDense(2, []float64{1.5, -3.0})

	assert.True(b.Contains(in, 0))
	assert.False(b.Contains(out, 0))
	assert.False(b.Contains(mat.NewVecDense(3, nil), 0))
	assert.Equal(0.0, b.Violation(in))
	assert.InDelta(2.0, b.Violation(out), 1e-12)

	b.Clamp(out)
	assert.Equal([]float64{1, -1}, out.RawVector().Data)

	bounds := Bounds{State: b}
	assert.InDelta(2.0, bounds.Violation([]*mat.VecDense{in, mat.NewVecDense(2, []float64{0, 3})}, nil), 1e-12)
}

func TestSet(t *testing.T) {
	assert := assert.New(t)

	state, err := NewBox([]float64{-1, math.Inf(-1)}, []float64{1, math.Inf(1)}, 2)
	require.NoError(t, err)
	input, err := NewBox([]float64{-0.5}, []float64{0.5}, 1)
	require.NoError(t, err)

	n := 3
	s, err := NewSet(Bounds{State: state, Input: input}, n, 2, 1)
	assert.NoError(err)
	// 2 input constraints and 2 finite state constraints per step
	assert.Equal(4*n, s.Len())

	X := mat.NewVecDense(6, []float64{0.5, 9, 1.5, 9, -2, 9})
	U := mat.NewVecDense(3, []float64{0.1, 0.7, -0.5})

	c := make([]float64, s.Len())
	s.Eval(c, X, U)
	assert.InDeltaSlice([]float64{
		0.4, 0.6, 0.5, 1.5,
		-0.2, 1.2, -0.5, 2.5,
		1.0, 0.0, 3.0, -1.0,
	}, c, 1e-12)

	assert.InDelta(1.0, s.Violation(X, U), 1e-12)

	_, err = NewSet(Bounds{State: state}, n, 3, 1)
	assert.ErrorIs(err, mpc.ErrDimensionMismatch)

	_, err = NewSet(Bounds{Input: input}, n, 2, 2)
	assert.ErrorIs(err, mpc.ErrDimensionMismatch)

	_, err = NewSet(Bounds{}, 0, 2, 1)
	assert.ErrorIs(err, mpc.ErrInvalidHorizon)

	empty, err := NewSet(Bounds{}, n, 2, 1)
	assert.NoError(err)
	assert.Equal(0, empty.Len())
	assert.Nil(empty.Jacobian(mat.NewDense(6, 3, nil)))
}

func TestSetJacobian(t *testing.T) {
	assert := assert.New(t)

	A := mat.NewDense(2, 2, []float64{1.0, 0.1, 0.0, 1.0})
	B := mat.NewDense(2, 1, []float64{0.005, 0.1})
	m, err := sim.NewDiscrete(A, B, nil, nil, nil)
	require.NoError(t, err)

	n := 3
	p, err := horizon.New(m, n)
	require.NoError(t, err)

	state, err := NewBox([]float64{-1}, []float64{1}, 2)
	require.NoError(t, err)
	input, err := NewBox([]float64{-1}, []float64{1}, 1)
	require.NoError(t, err)

	s, err := NewSet(Bounds{State: state, Input: input}, n, 2, 1)
	require.NoError(t, err)

	x := mat.NewVecDense(2, []float64{0.2, -0.3})
	free, err := p.Free(x)
	require.NoError(t, err)
	gamma := p.Gamma()

	jac := s.Jacobian(gamma)
	r, c := jac.Dims()
	assert.Equal(s.Len(), r)
	assert.Equal(n, c)

	eval := func(dst, u []float64) {
		X := mat.NewVecDense(2*n, nil)
		X.MulVec(gamma, mat.NewVecDense(n, u))
		X.AddVec(X, free)
		s.Eval(dst, X, mat.NewVecDense(n, u))
	}

	expJac := mat.NewDense(s.Len(), n, nil)
	fd.Jacobian(expJac, eval, []float64{0.1, 0.2, 0.3}, &fd.JacobianSettings{Formula: fd.Central})

	assert.True(mat.EqualApprox(expJac, jac, 1e-6))
}
