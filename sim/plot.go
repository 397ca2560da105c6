package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// NewTimePlot creates new line plot of time series stored in data.
// The first column of data holds the sample times, each of the remaining
// columns holds one series labelled by the corresponding item in labels.
// A dashed horizontal line is drawn for each of the given limits.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * data is nil or it does not have at least 2 columns
// * the number of labels does not match the number of series
// * gonum plot fails to be created
func NewTimePlot(title string, data *mat.Dense, labels []string, limits ...float64) (*plot.Plot, error) {
	if data == nil || data.IsEmpty() {
		return nil, fmt.Errorf("invalid data supplied")
	}

	_, cols := data.Dims()
	if cols < 2 {
		return nil, fmt.Errorf("invalid data dimensions")
	}

	if len(labels) != cols-1 {
		return nil, fmt.Errorf("invalid number of labels: %d != %d", len(labels), cols-1)
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "step"
	p.Y.Label.Text = "value"

	p.Legend.Top = true

	for i, label := range labels {
		line, err := plotter.NewLine(makePoints(data, i+1))
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %v", err)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(1.5)

		p.Add(line)
		p.Legend.Add(label, line)
	}

	for _, limit := range limits {
		l := limit
		fn := plotter.NewFunction(func(float64) float64 { return l })
		fn.LineStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
		fn.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

		p.Add(fn)
	}

	return p, nil
}

func makePoints(m *mat.Dense, col int) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, col)
	}

	return pts
}
