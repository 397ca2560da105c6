package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/milosgajdos/go-mpc/closedloop"
	"github.com/milosgajdos/go-mpc/config"
	"github.com/milosgajdos/go-mpc/sim"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func runSimulation(cmd *cobra.Command, rf *runFlags) error {
	cfg, err := loadConfig(rf.configFile, rf.preset)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("steps") {
		cfg.Steps = rf.steps
	}
	if cmd.Flags().Changed("horizon") {
		cfg.Horizon = rf.horizon
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("running simulation", "name", cfg.Name, "horizon", cfg.Horizon, "steps", cfg.Steps)

	traj, err := cfg.Run(cmd.Context(), closedloop.WithStepFunc(logStep))
	if err != nil {
		if traj != nil && traj.Steps() > 0 {
			slog.Warn("simulation stopped early", "steps", traj.Steps(), "err", err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, summary(cfg, traj))

	if rf.chart {
		fmt.Fprintln(out, chart(traj))
	}

	if rf.jsonOut != "" {
		if err := writeOutput(out, rf.jsonOut, traj.WriteJSON); err != nil {
			return fmt.Errorf("failed to write json: %w", err)
		}
	}

	if rf.csvOut != "" {
		if err := writeOutput(out, rf.csvOut, traj.WriteCSV); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}

	if rf.pngOut != "" {
		if err := savePlots(cfg, traj, rf.pngOut); err != nil {
			return fmt.Errorf("failed to plot trajectory: %w", err)
		}
	}

	return nil
}

func logStep(s closedloop.Step) error {
	status := s.Plan.Solution.Status
	if !status.OK() {
		slog.Warn("optimizer did not converge", "step", s.Index, "status", status, "violation", s.Plan.Solution.Violation)
	}

	slog.Debug("step",
		"step", s.Index,
		"input", mat.Formatted(s.Input.T(), mat.Squeeze()),
		"state", mat.Formatted(s.Next.T(), mat.Squeeze()),
		"cost", s.Plan.Cost,
		"iterations", s.Plan.Solution.Iterations,
	)

	return nil
}

func summary(cfg *config.Config, traj *closedloop.Trajectory) string {
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value)
	}

	unconverged := okStyle.Render("0")
	if n := traj.Unconverged(); n > 0 {
		unconverged = warnStyle.Render(strconv.Itoa(n))
	}

	lines := []string{
		titleStyle.Render("mpcsim: " + cfg.Name),
		row("steps", strconv.Itoa(traj.Steps())),
		row("horizon", strconv.Itoa(cfg.Horizon)),
		labelStyle.Render("unconverged") + unconverged,
		row("control effort", fmt.Sprintf("%.4f", traj.ControlEffort())),
	}

	if terr, err := traj.TrackingError(mat.NewVecDense(len(cfg.Reference), cfg.Reference)); err == nil {
		lines = append(lines, row("tracking error", fmt.Sprintf("%.4f", terr)))
	}

	last := traj.States[len(traj.States)-1]
	lines = append(lines, row("final state", fmt.Sprintf("%.4f", mat.Formatted(last.T(), mat.Squeeze()))))

	return boxStyle.Render(strings.Join(lines, "\n"))
}

func chart(traj *closedloop.Trajectory) string {
	var series [][]float64
	var names []string

	sm := traj.StateMatrix()
	_, cols := sm.Dims()
	for j := 1; j < cols; j++ {
		series = append(series, mat.Col(nil, j, sm))
		names = append(names, "x"+strconv.Itoa(j-1))
	}

	im := traj.InputMatrix()
	_, cols = im.Dims()
	for j := 1; j < cols; j++ {
		series = append(series, mat.Col(nil, j, im))
		names = append(names, "u"+strconv.Itoa(j-1))
	}

	colors := []asciigraph.AnsiColor{asciigraph.Blue, asciigraph.Green, asciigraph.Yellow, asciigraph.Red, asciigraph.Magenta, asciigraph.Cyan}
	seriesColors := make([]asciigraph.AnsiColor, len(series))
	for i := range seriesColors {
		seriesColors[i] = colors[i%len(colors)]
	}

	return asciigraph.PlotMany(series,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.SeriesColors(seriesColors...),
		asciigraph.SeriesLegends(names...),
		asciigraph.Caption("closed loop trajectory"),
	)
}

func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := write(f); err != nil {
		f.Close()
		return err
	}

	slog.Info("saved", "file", path)

	return f.Close()
}

func savePlots(cfg *config.Config, traj *closedloop.Trajectory, path string) error {
	sm := traj.StateMatrix()
	_, cols := sm.Dims()

	labels := make([]string, cols-1)
	for i := range labels {
		labels[i] = "x" + strconv.Itoa(i)
	}

	p, err := sim.NewTimePlot("states", sm, labels, finite(cfg.Bounds.StateMin, cfg.Bounds.StateMax)...)
	if err != nil {
		return err
	}

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return err
	}
	slog.Info("saved", "file", path)

	im := traj.InputMatrix()
	_, cols = im.Dims()

	labels = make([]string, cols-1)
	for i := range labels {
		labels[i] = "u" + strconv.Itoa(i)
	}

	p, err = sim.NewTimePlot("inputs", im, labels, finite(cfg.Bounds.InputMin, cfg.Bounds.InputMax)...)
	if err != nil {
		return err
	}

	ext := filepath.Ext(path)
	inPath := strings.TrimSuffix(path, ext) + "_inputs" + ext
	if err := p.Save(10*vg.Inch, 6*vg.Inch, inPath); err != nil {
		return err
	}
	slog.Info("saved", "file", inPath)

	return nil
}

// finite returns the distinct finite values of the given bounds.
func finite(bounds ...[]float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, b := range bounds {
		for _, v := range b {
			if math.IsInf(v, 0) || math.IsNaN(v) || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}

	return out
}
