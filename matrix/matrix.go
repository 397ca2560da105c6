// Package matrix provides gonum matrix helpers used across the predictive controller.
package matrix

import (
	"fmt"
	"math"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Identity returns n x n identity matrix.
// It panics if n is non-positive.
func Identity(n int) *mat.Dense {
	return ScaledIdentity(n, 1.0)
}

// ScaledIdentity returns n x n diagonal matrix with val on its diagonal.
// It panics if n is non-positive.
func ScaledIdentity(n int, val float64) *mat.Dense {
	eye, err := matrix.NewDenseValIdentity(n, val)
	if err != nil {
		panic(err)
	}

	return eye
}

// Power returns a raised to the power of k. a must be square.
// Power of 0 is an identity matrix.
func Power(a mat.Matrix, k int) *mat.Dense {
	r, _ := a.Dims()
	if k == 0 {
		return Identity(r)
	}

	p := &mat.Dense{}
	p.Pow(a, k)

	return p
}

// QuadForm returns xᵀ*m*x
func QuadForm(x mat.Vector, m mat.Matrix) float64 {
	return mat.Inner(x, m, x)
}

// BlockDiag returns block diagonal matrix with blocks on its diagonal.
func BlockDiag(blocks ...mat.Matrix) *mat.Dense {
	var rows, cols int
	for _, b := range blocks {
		r, c := b.Dims()
		rows += r
		cols += c
	}

	if rows == 0 || cols == 0 {
		return &mat.Dense{}
	}

	out := mat.NewDense(rows, cols, nil)
	var i, j int
	for _, b := range blocks {
		r, c := b.Dims()
		if r > 0 && c > 0 {
			out.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(b)
		}
		i += r
		j += c
	}

	return out
}

// Broadcast returns vals if it has n elements.
// A single value is broadcast to a slice of length n.
// It returns error for any other length of vals.
func Broadcast(vals []float64, n int) ([]float64, error) {
	switch len(vals) {
	case n:
		out := make([]float64, n)
		copy(out, vals)
		return out, nil
	case 1:
		out := make([]float64, n)
		floats.AddConst(vals[0], out)
		return out, nil
	default:
		return nil, fmt.Errorf("cannot broadcast %d values to %d", len(vals), n)
	}
}

// IsSymmetric returns true if m is square and symmetric within tol.
func IsSymmetric(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return false
			}
		}
	}

	return true
}

// NewDiag returns a square matrix with vals on its diagonal.
func NewDiag(vals ...float64) *mat.Dense {
	n := len(vals)
	m := mat.NewDense(n, n, nil)
	for i, v := range vals {
		m.Set(i, i, v)
	}

	return m
}
