package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/milosgajdos/go-mpc/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type runFlags struct {
	configFile string
	preset     string
	steps      int
	horizon    int
	jsonOut    string
	csvOut     string
	pngOut     string
	chart      bool
}

// main is the entry point of the mpcsim CLI.
// It exits the process with status 1 if command execution returns an error.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:          "mpcsim",
		Short:        "receding horizon model predictive control simulator",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every closed loop step")

	rf := &runFlags{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run closed loop simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, rf)
		},
	}
	runCmd.Flags().StringVar(&rf.configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&rf.preset, "preset", "", "use preset configuration")
	runCmd.Flags().IntVar(&rf.steps, "steps", 0, "number of closed loop steps (overrides config)")
	runCmd.Flags().IntVar(&rf.horizon, "horizon", 0, "prediction horizon (overrides config)")
	runCmd.Flags().StringVar(&rf.jsonOut, "json", "", "write trajectory as JSON to file (- for stdout)")
	runCmd.Flags().StringVar(&rf.csvOut, "csv", "", "write trajectory as CSV to file (- for stdout)")
	runCmd.Flags().StringVar(&rf.pngOut, "png", "", "plot states and inputs to PNG file")
	runCmd.Flags().BoolVar(&rf.chart, "chart", false, "draw terminal chart of the trajectory")
	runCmd.MarkFlagsMutuallyExclusive("config", "preset")

	var cfgPreset string
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print configuration as yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("", cfgPreset)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	configCmd.Flags().StringVar(&cfgPreset, "preset", "", "preset configuration")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.PresetNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, configCmd, presetsCmd)

	return rootCmd
}

func loadConfig(path, preset string) (*config.Config, error) {
	switch {
	case path != "":
		return config.Load(path)
	case preset != "":
		return config.Preset(preset)
	default:
		return config.Default(), nil
	}
}
