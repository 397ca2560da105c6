package sim

import "gonum.org/v1/gonum/mat"

// NewPitch returns a discrete-time model of aircraft pitch dynamics with
// normalized units. The state holds angle of attack, pitch rate and pitch
// angle, the single input is the elevator deflection. All three states are observed.
func NewPitch() *Discrete {
	A := mat.NewDense(3, 3, []float64{
		0.95, 0.3, 0.0,
		-0.02, 0.9, 0.0,
		0.0, 0.1, 1.0,
	})
	B := mat.NewDense(3, 1, []float64{0.02, 0.1, 0.0})
	C := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})

	return &Discrete{System: System{A: A, B: B, C: C}}
}

// NewDoubleIntegrator returns a double integrator sampled with zero-order hold
// at Ts. The state holds position and velocity, the input is acceleration and
// position is observed.
func NewDoubleIntegrator(Ts float64) *Discrete {
	A := mat.NewDense(2, 2, []float64{
		1, Ts,
		0, 1,
	})
	B := mat.NewDense(2, 1, []float64{Ts * Ts / 2, Ts})
	C := mat.NewDense(1, 2, []float64{1, 0})

	return &Discrete{System: System{A: A, B: B, C: C}}
}
