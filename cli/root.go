// Package cli is the farecraft command line.
package cli

import (
	"fmt"
	"os"

	"farecraft/config"
	"farecraft/utils"

	"github.com/spf13/cobra"
)

var Version = "dev"

// app carries what every subcommand needs once config is loaded.
type app struct {
	cfg    *config.Config
	logger *utils.Logger
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "farecraft",
		Short:         "farecraft - award and cash fare scraper with cents-per-point valuation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logger, err := utils.NewLogger(cfg.App.Env, cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(scrapeCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(runsCmd(a))
	rootCmd.AddCommand(tokensCmd(a))

	return rootCmd
}
