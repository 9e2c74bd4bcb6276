package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/exporter"
	"github.com/dataplane-tools/xrm-migrate/internal/migration"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/xrmclient"
)

var (
	exportSchemaPath string
	exportOutPath    string
	exportBaseURL    string
	exportToken      string
	exportJSONLPath  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all entities (and their M:N associations) from a source environment into a bundle",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportSchemaPath, "schema", "", "path to data_schema.xml")
	exportCmd.Flags().StringVar(&exportOutPath, "out", "export.zip", "path to write the export bundle")
	exportCmd.Flags().StringVar(&exportBaseURL, "base-url", "", "source environment's REST base URL")
	exportCmd.Flags().StringVar(&exportToken, "token", os.Getenv("XRM_SOURCE_TOKEN"), "bearer token for the source environment (defaults to $XRM_SOURCE_TOKEN)")
	exportCmd.Flags().StringVar(&exportJSONLPath, "progress-jsonl", "", "optional path to mirror progress events as newline-delimited JSON")
	_ = exportCmd.MarkFlagRequired("schema")
	_ = exportCmd.MarkFlagRequired("base-url")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	f, err := os.Open(exportSchemaPath)
	if err != nil {
		return fmt.Errorf("migrate export: open schema: %w", err)
	}
	s, err := schema.Read(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("migrate export: parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("migrate export: %w", err)
	}

	client := xrmclient.New(xrmclient.Config{BaseURL: exportBaseURL, Token: exportToken, Timeout: cfg.RequestTimeout})
	p := pool.NewBounded(client, cfg.PoolDOP)

	w, err := archive.NewWriter(exportOutPath)
	if err != nil {
		return fmt.Errorf("migrate export: %w", err)
	}
	w.SetSchema(s)

	bus := report.NewBus()
	bus.Register(report.NewDiagSink(os.Stderr))
	if exportJSONLPath != "" {
		jf, err := os.Create(exportJSONLPath)
		if err != nil {
			return fmt.Errorf("migrate export: %w", err)
		}
		defer jf.Close()
		bus.Register(report.NewJSONLSink(jf))
	}
	errs := report.NewBuilder()

	manifestPath := cfg.ManifestPath
	if manifestPath == "" && !boot.NoManifest {
		manifestPath = exportOutPath + ".manifest.json"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if environment != "" {
		logger = logger.With("environment", environment)
	}
	sess := migration.NewSession(logger, bus)
	exportErr := migration.Export(ctx, sess, s, p, w, errs, exporter.Options{PageSize: cfg.PageSize, ManifestPath: manifestPath})
	if finishErr := w.Finish(); finishErr != nil && exportErr == nil {
		exportErr = finishErr
	}

	if exportErr != nil {
		return fmt.Errorf("migrate export: %w", exportErr)
	}
	if manifestPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "export complete: bundle=%s manifest=%s\n", exportOutPath, manifestPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "export complete: bundle=%s\n", exportOutPath)
	}
	return nil
}
