// Package solver implements constrained minimizers used by predictive controllers.
package solver

import (
	"context"
	"fmt"
	"math"
	"strings"

	mpc "github.com/milosgajdos/go-mpc"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// DefaultPenalty is the default initial penalty parameter
	DefaultPenalty = 10.0
	// DefaultPenaltyGrowth is the default penalty growth factor
	DefaultPenaltyGrowth = 10.0
	// DefaultMaxPenalty is the default maximum penalty parameter
	DefaultMaxPenalty = 1e8
	// DefaultOuterIterations is the default maximum number of multiplier updates
	DefaultOuterIterations = 100
	// DefaultInnerIterations is the default maximum number of inner iterations
	DefaultInnerIterations = 1000
	// DefaultFeasibilityTol is the default constraint violation tolerance
	DefaultFeasibilityTol = 1e-6
	// DefaultOptimalityTol is the default relative stationarity tolerance
	DefaultOptimalityTol = 1e-6
)

// Config configures AugLag
type Config struct {
	// Method is the inner unconstrained method: bfgs, lbfgs or cg
	Method string
	// Penalty is the initial penalty parameter
	Penalty float64
	// PenaltyGrowth scales the penalty when the violation does not decrease enough
	PenaltyGrowth float64
	// MaxPenalty caps the penalty parameter
	MaxPenalty float64
	// OuterIterations is the maximum number of multiplier updates
	OuterIterations int
	// InnerIterations is the maximum number of major iterations of the inner method
	InnerIterations int
	// FeasibilityTol is the constraint violation tolerance
	FeasibilityTol float64
	// OptimalityTol is the relative stationarity and complementarity tolerance
	OptimalityTol float64
}

// DefaultConfig returns default AugLag configuration
func DefaultConfig() Config {
	return Config{
		Method:          "bfgs",
		Penalty:         DefaultPenalty,
		PenaltyGrowth:   DefaultPenaltyGrowth,
		MaxPenalty:      DefaultMaxPenalty,
		OuterIterations: DefaultOuterIterations,
		InnerIterations: DefaultInnerIterations,
		FeasibilityTol:  DefaultFeasibilityTol,
		OptimalityTol:   DefaultOptimalityTol,
	}
}

// AugLag is an augmented Lagrangian (Powell-Hestenes-Rockafellar) minimizer of
// smooth functions subject to inequality constraints c(x) >= 0.
//
// Each outer iteration minimizes the augmented Lagrangian
//
//	L(x; λ, ρ) = f(x) + 1/(2ρ) Σ [max(0, λ_j - ρc_j(x))² - λ_j²]
//
// with an unconstrained gonum optimize method, then updates the multipliers
// λ_j = max(0, λ_j - ρc_j(x)) and grows ρ if the violation did not shrink enough.
//
// AugLag is deterministic: the same problem and initial point give the same solution.
type AugLag struct {
	c Config
}

// NewAugLag creates new AugLag and returns it.
// Zero configuration values are replaced by their defaults.
// It returns error if the configuration is invalid.
func NewAugLag(c Config) (*AugLag, error) {
	d := DefaultConfig()
	if c.Method == "" {
		c.Method = d.Method
	}
	if c.Penalty == 0 {
		c.Penalty = d.Penalty
	}
	if c.PenaltyGrowth == 0 {
		c.PenaltyGrowth = d.PenaltyGrowth
	}
	if c.MaxPenalty == 0 {
		c.MaxPenalty = d.MaxPenalty
	}
	if c.OuterIterations == 0 {
		c.OuterIterations = d.OuterIterations
	}
	if c.InnerIterations == 0 {
		c.InnerIterations = d.InnerIterations
	}
	if c.FeasibilityTol == 0 {
		c.FeasibilityTol = d.FeasibilityTol
	}
	if c.OptimalityTol == 0 {
		c.OptimalityTol = d.OptimalityTol
	}

	if _, err := newMethod(c.Method); err != nil {
		return nil, err
	}

	switch {
	case c.Penalty < 0:
		return nil, fmt.Errorf("invalid penalty: %v", c.Penalty)
	case c.PenaltyGrowth < 1:
		return nil, fmt.Errorf("invalid penalty growth: %v", c.PenaltyGrowth)
	case c.MaxPenalty < c.Penalty:
		return nil, fmt.Errorf("max penalty %v smaller than penalty %v", c.MaxPenalty, c.Penalty)
	case c.OuterIterations < 0 || c.InnerIterations < 0:
		return nil, fmt.Errorf("invalid iteration limits: %d, %d", c.OuterIterations, c.InnerIterations)
	case c.FeasibilityTol < 0 || c.OptimalityTol < 0:
		return nil, fmt.Errorf("invalid tolerances: %v, %v", c.FeasibilityTol, c.OptimalityTol)
	}

	return &AugLag{c: c}, nil
}

// Config returns solver configuration
func (a *AugLag) Config() Config {
	return a.c
}

func newMethod(name string) (optimize.Method, error) {
	switch strings.ToLower(name) {
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "lbfgs":
		return &optimize.LBFGS{}, nil
	case "cg":
		return &optimize.CG{}, nil
	default:
		return nil, fmt.Errorf("unsupported method: %q", name)
	}
}

// Minimize minimizes p starting from x0.
// It returns the best point found along with its status: a solution which is
// not Converged is still the best available point. Minimize only returns error
// if the problem is invalid or ctx is cancelled.
func (a *AugLag) Minimize(ctx context.Context, p *mpc.Problem, x0 []float64) (*mpc.Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if len(x0) != p.Dim {
		return nil, fmt.Errorf("%w: initial point: %d != %d", mpc.ErrDimensionMismatch, len(x0), p.Dim)
	}

	m := p.NumIneq
	w := newWork(p.Dim, m)

	x := make([]float64, p.Dim)
	copy(x, x0)

	lambda := make([]float64, m)
	rho := a.c.Penalty

	sol := &mpc.Solution{Status: mpc.IterationLimit}

	prevViol := math.Inf(1)
	for iter := 1; iter <= a.c.OuterIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		res, evals, err := a.minimizeInner(p, w, x, lambda, rho)
		sol.Evaluations += evals
		sol.Iterations = iter
		if err != nil && res == nil {
			sol.Status = mpc.Failed
			break
		}

		if !floats.HasNaN(res.X) && !math.IsInf(res.F, 0) {
			copy(x, res.X)
		}

		viol := a.violation(p, w, x)
		w.lambda = w.lambda[:0]
		for j := 0; j < m; j++ {
			w.lambda = append(w.lambda, math.Max(0, lambda[j]-rho*w.c[j]))
		}
		copy(lambda, w.lambda)

		if viol <= a.c.FeasibilityTol && a.stationary(p, w, x, lambda) {
			sol.Status = mpc.Converged
			break
		}

		if m == 0 {
			// without constraints the inner minimization is the whole problem
			sol.Status = mpc.IterationLimit
			if err == nil && !res.Status.Early() {
				sol.Status = mpc.Converged
			}
			break
		}

		if viol > 0.25*prevViol {
			rho = math.Min(rho*a.c.PenaltyGrowth, a.c.MaxPenalty)
		}
		prevViol = viol
	}

	sol.X = x
	sol.F = p.Func(x)
	sol.Violation = a.violation(p, w, x)

	if sol.Status == mpc.IterationLimit && sol.Violation > a.c.FeasibilityTol {
		sol.Status = mpc.Infeasible
	}

	if math.IsNaN(sol.F) || floats.HasNaN(x) {
		sol.Status = mpc.Failed
	}

	return sol, nil
}

// work holds buffers reused across iterations.
type work struct {
	c      []float64
	cGrad  []float64
	jac    *mat.Dense
	grad   []float64
	lambda []float64
}

func newWork(n, m int) *work {
	w := &work{
		c:      make([]float64, m),
		cGrad:  make([]float64, m),
		grad:   make([]float64, n),
		lambda: make([]float64, 0, m),
	}
	if m > 0 {
		w.jac = mat.NewDense(m, n, nil)
	}

	return w
}

func (a *AugLag) minimizeInner(p *mpc.Problem, w *work, x, lambda []float64, rho float64) (*optimize.Result, int, error) {
	m := p.NumIneq

	aug := optimize.Problem{
		Func: func(x []float64) float64 {
			f := p.Func(x)
			if m == 0 {
				return f
			}
			p.Ineq(w.c, x)
			for j := 0; j < m; j++ {
				t := math.Max(0, lambda[j]-rho*w.c[j])
				f += (t*t - lambda[j]*lambda[j]) / (2 * rho)
			}
			return f
		},
		Grad: func(grad, x []float64) {
			p.Grad(grad, x)
			if m == 0 {
				return
			}
			p.Ineq(w.cGrad, x)
			p.IneqJac(w.jac, x)
			for j := 0; j < m; j++ {
				t := lambda[j] - rho*w.cGrad[j]
				if t <= 0 {
					continue
				}
				floats.AddScaled(grad, -t, w.jac.RawRowView(j))
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   a.c.InnerIterations,
		GradientThreshold: 1e-10,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-14,
			Iterations: 50,
		},
	}

	method, err := newMethod(a.c.Method)
	if err != nil {
		return nil, 0, err
	}

	res, err := optimize.Minimize(aug, x, settings, method)
	if res == nil {
		return nil, 0, err
	}

	return res, res.Stats.FuncEvaluations, err
}

// violation evaluates the constraints at x into w.c and returns the largest violation.
func (a *AugLag) violation(p *mpc.Problem, w *work, x []float64) float64 {
	if p.NumIneq == 0 {
		return 0
	}

	p.Ineq(w.c, x)

	var viol float64
	for _, c := range w.c {
		viol = math.Max(viol, -c)
	}

	return viol
}

// stationary checks the Lagrangian stationarity and complementarity at x.
// It expects w.c to hold the constraints evaluated at x.
func (a *AugLag) stationary(p *mpc.Problem, w *work, x, lambda []float64) bool {
	p.Grad(w.grad, x)
	scale := 1 + floats.Norm(w.grad, math.Inf(1))

	if p.NumIneq > 0 {
		p.IneqJac(w.jac, x)
		for j, l := range lambda {
			if l == 0 {
				continue
			}
			floats.AddScaled(w.grad, -l, w.jac.RawRowView(j))
			if l*math.Max(w.c[j], 0) > a.c.OptimalityTol*scale {
				return false
			}
		}
	}

	return floats.Norm(w.grad, math.Inf(1)) <= a.c.OptimalityTol*scale
}
