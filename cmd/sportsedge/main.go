package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "sportsedge"
	version = "v0.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Latency-alpha trading engine for in-play sports prediction markets",
		Version: version,
		Long: `sportsedge reacts to live score changes: every score delta is re-priced
through a per-sport win-probability model and traded against the lagging
prediction-market quote before it adjusts, with Kelly sizing, portfolio risk
caps, and WS-first position management.`,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (defaults apply when empty)")
	// accept snake_case spellings of flags, matching the config file keys
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the live trading engine",
		Long:  "Start the full pipeline: score feed, decision engine, position manager, calibration trainer, and dashboard.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cfgPath, false)
		},
	}

	dryRunCmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Start the engine with synthesized fills",
		Long:  "Identical to run, but orders are short-circuited to a synthetic fill at the displayed ask and no venue mutation occurs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cfgPath, true)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running instance's stats endpoint",
		RunE:  runHealth,
	}
	healthCmd.Flags().String("addr", "http://127.0.0.1:8088", "Dashboard base URL of the running instance")

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Force a single calibration training pass",
		Long:  "Run one fit-evaluate-promote cycle over resolved outcomes and exit. Promoted coefficients are persisted for the next engine start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibrate(cfgPath)
		},
	}

	gatesCmd := &cobra.Command{
		Use:   "gates",
		Short: "Inspect entry-gate decisions",
	}
	gatesDumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the most recent gate rejections from a running instance",
		RunE:  runGatesDump,
	}
	gatesDumpCmd.Flags().String("addr", "http://127.0.0.1:8088", "Dashboard base URL of the running instance")
	gatesDumpCmd.Flags().Int("n", 25, "Number of rejections to print")
	gatesCmd.AddCommand(gatesDumpCmd)

	rootCmd.AddCommand(runCmd, dryRunCmd, healthCmd, calibrateCmd, gatesCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
