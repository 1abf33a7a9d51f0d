// Package cli implements the botmaster command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/botmaster/internal/config"
)

var (
	cfgFile  string
	cfg      *config.Config
	logLevel string

	// Global JSON output flag - inherited by all subcommands
	jsonOutput bool

	// Build information - set by goreleaser via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "botmaster",
	Short: "Remote-control a fleet of automation bots over HTTP",
	Long: `botmaster manages a fleet of bot agents: it polls their status,
starts and stops work orders, and runs per-agent automation (one-shot
timers and daily schedules).

Quick Start:
  botmaster add 10.0.0.5:7011 --name miner   # Register an agent
  botmaster status                           # Poll the whole fleet
  botmaster run miner --order orders/farm.json
  botmaster auto schedule miner --start 08:00 --end 22:00
  botmaster watch                            # Supervise with live dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		setupLogging()
		return nil
	},
}

func setupLogging() {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}

	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/botmaster/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newAddCmd(),
		newRemoveCmd(),
		newListCmd(),
		newStatusCmd(),
		newHealthCmd(),
		newRunCmd(),
		newResumeCmd(),
		newStopCmd(),
		newGoHomeCmd(),
		newAutoCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
