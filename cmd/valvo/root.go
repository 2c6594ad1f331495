package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagConfig string
	flagDebug  bool

	rootCmd = &cobra.Command{
		Use:   "valvo",
		Short: "Policy Enforcement Engine",
		Long: `Valvo - Policy Enforcement Engine

Valvo enforces named compliance policies against structured records.
Each policy is an ordered set of rules pairing a condition (PII
detection, bias check, consent validation, financial thresholds, PHI
detection) with a corrective action, and every audited outcome lands
in an append-only trail that feeds the compliance dashboard.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	configured := ""
	if cfg, err := loadConfig(); err == nil {
		configured = cfg.LogLevel
	}
	zerolog.SetGlobalLevel(logLevel(configured, flagDebug))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// logLevel resolves the effective level: --debug wins over the configured
// level, and anything unparseable falls back to info.
func logLevel(configured string, debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(configured)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func init() {
	rootCmd.SetVersionTemplate(`Valvo {{.Version}} - Policy Enforcement Engine
`)
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}
