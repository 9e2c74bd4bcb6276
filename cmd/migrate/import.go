package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/importer"
	"github.com/dataplane-tools/xrm-migrate/internal/metadata"
	"github.com/dataplane-tools/xrm-migrate/internal/migration"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/xrmclient"
)

var (
	importBundlePath string
	importBaseURL    string
	importToken      string
	importMode       string
	importJSONLPath  string
	importDryRun     bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a bundle into a target environment, preserving referential integrity",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importBundlePath, "bundle", "", "path to the export bundle")
	importCmd.Flags().StringVar(&importBaseURL, "base-url", "", "target environment's REST base URL")
	importCmd.Flags().StringVar(&importToken, "token", os.Getenv("XRM_TARGET_TOKEN"), "bearer token for the target environment (defaults to $XRM_TARGET_TOKEN)")
	importCmd.Flags().StringVar(&importMode, "mode", string(importer.ModeUpsert), "Upsert, CreateOnly, or UpdateOnly")
	importCmd.Flags().StringVar(&importJSONLPath, "progress-jsonl", "", "optional path to mirror progress events as newline-delimited JSON")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate the plan against the bundle's own schema instead of a live target")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if importBundlePath == "" {
		importBundlePath = boot.BundlePath
	}
	if importBundlePath == "" {
		return fmt.Errorf("migrate import: --bundle is required (or set bundle-path in migrate.yaml)")
	}

	bundle, err := archive.Open(importBundlePath)
	if err != nil {
		return fmt.Errorf("migrate import: %w", err)
	}
	defer bundle.Close()

	var md metadata.Service
	var p pool.Pool
	if importDryRun {
		s, err := bundle.Schema()
		if err != nil {
			return fmt.Errorf("migrate import: %w", err)
		}
		md = &metadata.Static{Schema: s}
		p = pool.NewBounded(&noopClient{}, cfg.PoolDOP)
	} else {
		if importBaseURL == "" {
			return fmt.Errorf("migrate import: --base-url is required unless --dry-run is set")
		}
		client := xrmclient.New(xrmclient.Config{BaseURL: importBaseURL, Token: importToken, Timeout: cfg.RequestTimeout})
		md = client
		p = pool.NewBounded(client, cfg.PoolDOP)
	}

	bus := report.NewBus()
	bus.Register(report.NewDiagSink(os.Stderr))
	if importJSONLPath != "" {
		jf, err := os.Create(importJSONLPath)
		if err != nil {
			return fmt.Errorf("migrate import: %w", err)
		}
		defer jf.Close()
		bus.Register(report.NewJSONLSink(jf))
	}

	opts := importer.Options{
		Mode:       importer.Mode(importMode),
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
		CLIVersion: version,
		SDKVersion: version,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if environment != "" {
		logger = logger.With("environment", environment)
	}
	sess := migration.NewSession(logger, bus)
	result, err := migration.Import(ctx, sess, bundle, md, p, opts)

	reportPath := cfg.ReportPath
	if reportPath == "" {
		reportPath = importBundlePath + ".report.json"
	}
	if result != nil {
		if werr := result.Report.WriteFile(reportPath); werr != nil {
			fmt.Fprintf(os.Stderr, "migrate import: warning: failed to write error report: %v\n", werr)
		}
	}
	if err != nil {
		// A session-fatal abort (AuthFailure, NetworkFailure) still
		// wrote the report above; surface the classified category.
		return fmt.Errorf("migrate import: %s: %w", migration.Classify(err), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "import complete: created=%d updated=%d skipped=%d failed=%d report=%s\n",
		result.Created, result.Updated, result.Skipped, result.Failed, reportPath)

	if result.Failed > 0 {
		os.Exit(1)
	}
	return nil
}
