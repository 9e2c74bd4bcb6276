package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dataplane-tools/xrm-migrate/internal/config"
)

// version is overridden at build time via -ldflags, following the
// teacher's own version-stamping convention in cmd/bd.
var version = "dev"

var (
	cfgFile     string
	environment string
	noColor     bool

	cfg  *config.Config
	boot *config.FileConfig
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Move records between two environments of a structured business-data service",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		boot = config.LoadFileConfigWithEnv(".")
		if environment == "" {
			environment = boot.Environment
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a migrate.yaml run config (optional)")
	rootCmd.PersistentFlags().StringVar(&environment, "environment", "", "named environment profile (overrides migrate.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "has no effect: the diagnostic stream always uses ANSI color")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, mirroring
// the teacher's rootCtx/rootCancel pair so a long-running export or
// import can be interrupted cleanly (§5 Cancellation).
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
