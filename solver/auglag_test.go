package solver

import (
	"context"
	"testing"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// linearProblem returns the problem of minimizing f subject to G*x <= h
// i.e. h - G*x >= 0
func linearProblem(f func([]float64) float64, grad func(g, x []float64), G *mat.Dense, h []float64) *mpc.Problem {
	m, n := G.Dims()
	return &mpc.Problem{
		Dim:     n,
		Func:    f,
		Grad:    grad,
		NumIneq: m,
		Ineq: func(dst, x []float64) {
			for j := 0; j < m; j++ {
				dst[j] = h[j] - mat.Dot(G.RowView(j), mat.NewVecDense(n, x))
			}
		},
		IneqJac: func(dst *mat.Dense, x []float64) {
			dst.Scale(-1, G)
		},
	}
}

func sphere(center ...float64) (func([]float64) float64, func(g, x []float64)) {
	f := func(x []float64) float64 {
		var s float64
		for i := range x {
			d := x[i] - center[i]
			s += d * d
		}
		return s
	}
	grad := func(g, x []float64) {
		for i := range x {
			g[i] = 2 * (x[i] - center[i])
		}
	}
	return f, grad
}

func TestNewAugLag(t *testing.T) {
	assert := assert.New(t)

	s, err := NewAugLag(Config{})
	assert.NoError(err)
	assert.Equal(DefaultConfig(), s.Config())

	for _, method := range []string{"bfgs", "LBFGS", "cg"} {
		s, err = NewAugLag(Config{Method: method})
		assert.NoError(err)
		assert.NotNil(s)
	}

	for _, c := range []Config{
		{Method: "newton"},
		{Penalty: -1},
		{PenaltyGrowth: 0.5},
		{Penalty: 100, MaxPenalty: 10},
		{OuterIterations: -1},
		{FeasibilityTol: -1},
	} {
		s, err = NewAugLag(c)
		assert.Nil(s)
		assert.Error(err)
	}
}

func TestMinimizeUnconstrained(t *testing.T) {
	assert := assert.New(t)

	s, err := NewAugLag(Config{})
	require.NoError(t, err)

	f, grad := sphere(1, -2)
	p := &mpc.Problem{Dim: 2, Func: f, Grad: grad}

	sol, err := s.Minimize(context.Background(), p, []float64{0, 0})
	assert.NoError(err)
	assert.Equal(mpc.Converged, sol.Status)
	assert.InDeltaSlice([]float64{1, -2}, sol.X, 1e-6)
	assert.InDelta(0, sol.F, 1e-9)
	assert.Equal(0.0, sol.Violation)
}

func TestMinimizeConstrained(t *testing.T) {
	assert := assert.New(t)

	for _, method := range []string{"bfgs", "lbfgs", "cg"} {
		s, err := NewAugLag(Config{Method: method})
		require.NoError(t, err)

		// min (x-2)² s.t. x <= 1
		f, grad := sphere(2)
		p := linearProblem(f, grad, mat.NewDense(1, 1, []float64{1}), []float64{1})

		sol, err := s.Minimize(context.Background(), p, []float64{0})
		assert.NoError(err)
		assert.Equal(mpc.Converged, sol.Status, method)
		assert.InDelta(1.0, sol.X[0], 1e-5, method)
		assert.LessOrEqual(sol.Violation, 1e-6)

		// min x² + y² s.t. x + y >= 1
		f, grad = sphere(0, 0)
		p = linearProblem(f, grad, mat.NewDense(1, 2, []float64{-1, -1}), []float64{-1})

		sol, err = s.Minimize(context.Background(), p, []float64{3, -1})
		assert.NoError(err)
		assert.Equal(mpc.Converged, sol.Status, method)
		assert.InDeltaSlice([]float64{0.5, 0.5}, sol.X, 1e-5, method)
	}
}

func TestMinimizeInactiveConstraints(t *testing.T) {
	assert := assert.New(t)

	s, err := NewAugLag(Config{})
	require.NoError(t, err)

	// min (x-0.5)² + (y+0.5)² s.t. -1 <= x, y <= 1
	f, grad := sphere(0.5, -0.5)
	G := mat.NewDense(4, 2, []float64{1, 0, 0, 1, -1, 0, 0, -1})
	p := linearProblem(f, grad, G, []float64{1, 1, 1, 1})

	sol, err := s.Minimize(context.Background(), p, []float64{0, 0})
	assert.NoError(err)
	assert.Equal(mpc.Converged, sol.Status)
	assert.InDeltaSlice([]float64{0.5, -0.5}, sol.X, 1e-6)
}

func TestMinimizeInfeasible(t *testing.T) {
	assert := assert.New(t)

	s, err := NewAugLag(Config{OuterIterations: 20})
	require.NoError(t, err)

	// x >= 1 and x <= -1
	f, grad := sphere(0)
	p := linearProblem(f, grad, mat.NewDense(2, 1, []float64{-1, 1}), []float64{-1, -1})

	sol, err := s.Minimize(context.Background(), p, []float64{0})
	assert.NoError(err)
	assert.Equal(mpc.Infeasible, sol.Status)
	assert.False(sol.Status.OK())
	assert.Greater(sol.Violation, 0.5)
	assert.Equal(20, sol.Iterations)
}

func TestMinimizeDeterministic(t *testing.T) {
	assert := assert.New(t)

	s, err := NewAugLag(Config{})
	require.NoError(t, err)

	f, grad := sphere(3, 1, -2)
	G := mat.NewDense(2, 3, []float64{1, 1, 1, 1, -1, 0})
	p := linearProblem(f, grad, G, []float64{1, 0.5})

	sol1, err := s.Minimize(context.Background(), p, []float64{0, 0, 0})
	require.NoError(t, err)
	sol2, err := s.Minimize(context.Background(), p, []float64{0, 0, 0})
	require.NoError(t, err)

	assert.Equal(sol1.X, sol2.X)
	assert.Equal(sol1.Status, sol2.Status)
	assert.Equal(sol1.Iterations, sol2.Iterations)
}

func TestMinimizeErrors(t *testing.T) {
	assert := assert.New(t)

	s, err := NewAugLag(Config{})
	require.NoError(t, err)

	f, grad := sphere(1)
	p := &mpc.Problem{Dim: 1, Func: f, Grad: grad}

	// initial point dimension
	sol, err := s.Minimize(context.Background(), p, []float64{0, 0})
	assert.Nil(sol)
	assert.ErrorIs(err, mpc.ErrDimensionMismatch)

	// invalid problem
	sol, err = s.Minimize(context.Background(), &mpc.Problem{Dim: 1}, []float64{0})
	assert.Nil(sol)
	assert.Error(err)

	// cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err = s.Minimize(ctx, p, []float64{0})
	assert.Nil(sol)
	assert.ErrorIs(err, context.Canceled)
}
