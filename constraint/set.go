package constraint

import (
	"fmt"
	"math"

	mpc "github.com/milosgajdos/go-mpc"
	"gonum.org/v1/gonum/mat"
)

type kind int

const (
	inputUpper kind = iota
	inputLower
	stateUpper
	stateLower
)

// row is a single inequality constraint c >= 0
type row struct {
	kind  kind
	step  int
	comp  int
	limit float64
}

// Set is the set of inequality constraints implied by Bounds over a prediction horizon.
//
// For every predicted step i it contains, in this order:
//
//	u_max - u_i >= 0
//	u_i - u_min >= 0
//	x_max - x_i >= 0
//	x_i - x_min >= 0
//
// Components with infinite limits are left out.
type Set struct {
	rows []row
	n    int
	nx   int
	nu   int
}

// NewSet creates new constraint Set for bounds b over horizon n
// for states of dimension nx and inputs of dimension nu.
// It returns error if the bounds dimensions do not match nx and nu.
func NewSet(b Bounds, n, nx, nu int) (*Set, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", mpc.ErrInvalidHorizon, n)
	}

	if b.State != nil && b.State.Dim() != nx {
		return nil, fmt.Errorf("%w: state bounds: %d != %d", mpc.ErrDimensionMismatch, b.State.Dim(), nx)
	}

	if b.Input != nil && b.Input.Dim() != nu {
		return nil, fmt.Errorf("%w: input bounds: %d != %d", mpc.ErrDimensionMismatch, b.Input.Dim(), nu)
	}

	var rows []row
	for i := 0; i < n; i++ {
		if b.Input != nil {
			rows = appendRows(rows, inputUpper, i, b.Input.upper)
			rows = appendRows(rows, inputLower, i, b.Input.lower)
		}
		if b.State != nil {
			rows = appendRows(rows, stateUpper, i, b.State.upper)
			rows = appendRows(rows, stateLower, i, b.State.lower)
		}
	}

	return &Set{rows: rows, n: n, nx: nx, nu: nu}, nil
}

func appendRows(rows []row, k kind, step int, limits []float64) []row {
	for c, l := range limits {
		if math.IsInf(l, 0) {
			continue
		}
		rows = append(rows, row{kind: k, step: step, comp: c, limit: l})
	}

	return rows
}

// Len returns the number of constraints in the set
func (s *Set) Len() int {
	return len(s.rows)
}

// Eval evaluates the constraints on the stacked predicted states X
// and stacked inputs U and stores them in dst.
func (s *Set) Eval(dst []float64, X, U mat.Vector) {
	for j, r := range s.rows {
		switch r.kind {
		case inputUpper:
			dst[j] = r.limit - U.AtVec(r.step*s.nu+r.comp)
		case inputLower:
			dst[j] = U.AtVec(r.step*s.nu+r.comp) - r.limit
		case stateUpper:
			dst[j] = r.limit - X.AtVec(r.step*s.nx+r.comp)
		case stateLower:
			dst[j] = X.AtVec(r.step*s.nx+r.comp) - r.limit
		}
	}
}

// Jacobian returns the Jacobian of the constraints with respect to the
// stacked inputs U given the forced response matrix gamma of the prediction
// X = Phi*x + gamma*U. The constraints are linear so the Jacobian is constant.
// It returns nil if the set is empty.
func (s *Set) Jacobian(gamma mat.Matrix) *mat.Dense {
	if len(s.rows) == 0 {
		return nil
	}

	cols := s.n * s.nu
	jac := mat.NewDense(len(s.rows), cols, nil)
	for j, r := range s.rows {
		switch r.kind {
		case inputUpper:
			jac.Set(j, r.step*s.nu+r.comp, -1)
		case inputLower:
			jac.Set(j, r.step*s.nu+r.comp, 1)
		case stateUpper, stateLower:
			sign := 1.0
			if r.kind == stateUpper {
				sign = -1.0
			}
			xr := r.step*s.nx + r.comp
			for k := 0; k < cols; k++ {
				jac.Set(j, k, sign*gamma.At(xr, k))
			}
		}
	}

	return jac
}

// Violation returns the largest violation of the constraints
// by the stacked states X and inputs U.
func (s *Set) Violation(X, U mat.Vector) float64 {
	c := make([]float64, len(s.rows))
	s.Eval(c, X, U)

	var viol float64
	for _, v := range c {
		viol = math.Max(viol, -v)
	}

	return viol
}
