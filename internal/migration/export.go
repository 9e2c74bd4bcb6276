package migration

import (
	"context"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/exporter"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// Export runs C7 against sess's bus, logging the session boundary and
// final outcome through sess's structured logger in addition to the
// progress events C7 already publishes — the operational log and the
// progress stream are deliberately separate channels (§6 Logging), so
// a caller can silence one without losing the other.
func Export(ctx context.Context, sess *Session, s *schema.Schema, p pool.Pool, w *archive.Writer, errs *report.Builder, opts exporter.Options) error {
	log := sess.With("op", "export")
	log.Info("export starting", "entities", len(s.Entities))

	err := exporter.Export(ctx, s, p, w, sess.Bus, errs, opts)
	if err != nil {
		log.Error("export failed", "error", err.Error())
		return err
	}
	log.Info("export complete")
	return nil
}
