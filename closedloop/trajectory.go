package closedloop

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	mpc "github.com/milosgajdos/go-mpc"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Trajectory is a record of a closed loop run
type Trajectory struct {
	// States are the plant states x_0..x_T
	States []*mat.VecDense
	// Estimates are the state estimates fed to the controller, if any
	Estimates []*mat.VecDense
	// Inputs are the applied inputs u_0..u_T-1
	Inputs []*mat.VecDense
	// Plans are the plans the inputs were taken from
	Plans []*mpc.Plan
}

// Steps returns the number of completed steps
func (t *Trajectory) Steps() int {
	return len(t.Inputs)
}

// Statuses returns optimizer statuses of all the plans
func (t *Trajectory) Statuses() []mpc.Status {
	statuses := make([]mpc.Status, len(t.Plans))
	for i, p := range t.Plans {
		statuses[i] = mpc.Failed
		if p.Solution != nil {
			statuses[i] = p.Solution.Status
		}
	}

	return statuses
}

// Unconverged returns the number of plans computed by a non-converged optimizer
func (t *Trajectory) Unconverged() int {
	var n int
	for _, p := range t.Plans {
		if !p.Converged() {
			n++
		}
	}

	return n
}

// Costs returns the costs of all the plans
func (t *Trajectory) Costs() []float64 {
	costs := make([]float64, len(t.Plans))
	for i, p := range t.Plans {
		costs[i] = p.Cost
	}

	return costs
}

// ControlEffort returns mean absolute value of the applied inputs
func (t *Trajectory) ControlEffort() float64 {
	if len(t.Inputs) == 0 {
		return 0
	}

	var sum float64
	for _, u := range t.Inputs {
		sum += floats.Norm(u.RawVector().Data, 1)
	}

	return sum / float64(len(t.Inputs))
}

// TrackingError returns root mean square distance of the states from ref.
// It returns error if ref dimension does not match the states.
func (t *Trajectory) TrackingError(ref mat.Vector) (float64, error) {
	if len(t.States) == 0 {
		return 0, nil
	}

	var sum float64
	e := &mat.VecDense{}
	for _, x := range t.States {
		if x.Len() != ref.Len() {
			return 0, fmt.Errorf("%w: reference: %d != %d", mpc.ErrDimensionMismatch, ref.Len(), x.Len())
		}
		e.SubVec(x, ref)
		sum += mat.Dot(e, e)
	}

	return math.Sqrt(sum / float64(len(t.States))), nil
}

// StateMatrix returns the states stored in rows.
// The first column holds the step index, the remaining ones the state components.
func (t *Trajectory) StateMatrix() *mat.Dense {
	return toMatrix(t.States)
}

// InputMatrix returns the applied inputs stored in rows.
// The first column holds the step index, the remaining ones the input components.
func (t *Trajectory) InputMatrix() *mat.Dense {
	return toMatrix(t.Inputs)
}

func toMatrix(vecs []*mat.VecDense) *mat.Dense {
	if len(vecs) == 0 {
		return &mat.Dense{}
	}

	cols := vecs[0].Len() + 1
	m := mat.NewDense(len(vecs), cols, nil)
	for i, v := range vecs {
		m.Set(i, 0, float64(i))
		for j := 0; j < v.Len() && j+1 < cols; j++ {
			m.Set(i, j+1, v.AtVec(j))
		}
	}

	return m
}

// Record is the exported form of a Trajectory
type Record struct {
	Steps         int         `json:"steps"`
	States        [][]float64 `json:"states"`
	Estimates     [][]float64 `json:"estimates,omitempty"`
	Inputs        [][]float64 `json:"inputs"`
	Plans         [][]float64 `json:"plans"`
	Costs         []float64   `json:"costs"`
	Statuses      []string    `json:"statuses"`
	Violations    []float64   `json:"violations"`
	Unconverged   int         `json:"unconverged"`
	ControlEffort float64     `json:"control_effort"`
}

// Record returns the exported form of the trajectory
func (t *Trajectory) Record() Record {
	r := Record{
		Steps:         t.Steps(),
		States:        toSlices(t.States),
		Estimates:     toSlices(t.Estimates),
		Inputs:        toSlices(t.Inputs),
		Costs:         t.Costs(),
		Unconverged:   t.Unconverged(),
		ControlEffort: t.ControlEffort(),
	}

	for _, p := range t.Plans {
		var plan []float64
		for _, u := range p.Inputs {
			plan = append(plan, u.RawVector().Data...)
		}
		r.Plans = append(r.Plans, plan)

		var viol float64
		if p.Solution != nil {
			viol = p.Solution.Violation
		}
		r.Violations = append(r.Violations, viol)
	}

	for _, s := range t.Statuses() {
		r.Statuses = append(r.Statuses, s.String())
	}

	return r
}

func toSlices(vecs []*mat.VecDense) [][]float64 {
	if len(vecs) == 0 {
		return nil
	}

	out := make([][]float64, len(vecs))
	for i, v := range vecs {
		out[i] = make([]float64, v.Len())
		copy(out[i], v.RawVector().Data)
	}

	return out
}

// WriteJSON writes the trajectory record to w as indented JSON
func (t *Trajectory) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(t.Record())
}

// WriteCSV writes one row per step to w: the step index, the state
// the step started from, the applied input, the plan cost and optimizer status.
// The final state is written in a last row with empty input columns.
func (t *Trajectory) WriteCSV(w io.Writer) error {
	if len(t.States) == 0 {
		return fmt.Errorf("empty trajectory")
	}

	nx := t.States[0].Len()
	nu := 0
	if len(t.Inputs) > 0 {
		nu = t.Inputs[0].Len()
	}

	cw := csv.NewWriter(w)

	header := []string{"step"}
	for i := 0; i < nx; i++ {
		header = append(header, "x"+strconv.Itoa(i))
	}
	for i := 0; i < nu; i++ {
		header = append(header, "u"+strconv.Itoa(i))
	}
	header = append(header, "cost", "status")
	if err := cw.Write(header); err != nil {
		return err
	}

	statuses := t.Statuses()
	for k, x := range t.States {
		row := []string{strconv.Itoa(k)}
		for i := 0; i < x.Len(); i++ {
			row = append(row, formatFloat(x.AtVec(i)))
		}

		if k < len(t.Inputs) {
			for i := 0; i < t.Inputs[k].Len(); i++ {
				row = append(row, formatFloat(t.Inputs[k].AtVec(i)))
			}
			row = append(row, formatFloat(t.Plans[k].Cost), statuses[k].String())
		} else {
			for i := 0; i < nu+2; i++ {
				row = append(row, "")
			}
		}

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
