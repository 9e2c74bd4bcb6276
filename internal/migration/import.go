package migration

import (
	"context"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/importer"
	"github.com/dataplane-tools/xrm-migrate/internal/metadata"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
)

// Import runs C10 against sess's bus, logging the session boundary and
// final outcome through sess's structured logger alongside the
// progress events C10 already publishes.
func Import(ctx context.Context, sess *Session, bundle *archive.Reader, md metadata.Service, p pool.Pool, opts importer.Options) (*importer.Result, error) {
	log := sess.With("op", "import", "mode", string(opts.Mode))
	log.Info("import starting")

	result, err := importer.Run(ctx, bundle, md, p, sess.Bus, opts)
	if err != nil {
		log.Error("import failed", "error", err.Error(), "category", string(Classify(err)))
		// A session-fatal abort still carries the finalized report
		// (§7: the report is still written); pass it through.
		return result, err
	}
	log.Info("import complete",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}
