// Package exporter implements the parallel exporter (C7, §4.5):
// concurrent per-entity paging through the connection pool, value
// encoding, and archive writing, followed by a second wave that
// exports M:N associations in parallel by relationship. Entity fan-out
// uses golang.org/x/sync/errgroup (a direct dependency of the teacher,
// previously unused outside its worker-pool code) bounded by the
// pool's own DOP semaphore; progress publishes through internal/report.
package exporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// Options configures a single export run.
type Options struct {
	// PageSize is the number of records requested per page. Must be
	// between 1 and 5000 inclusive (§4.5).
	PageSize int

	// ManifestPath, if non-empty, receives a completion manifest
	// recording whether every entity exported cleanly.
	ManifestPath string
}

// DefaultPageSize is used when Options.PageSize is zero.
const DefaultPageSize = 5000

func (o Options) validate() error {
	size := o.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	if size < 1 || size > 5000 {
		return fmt.Errorf("exporter: page size %d out of range [1,5000]", size)
	}
	return nil
}

func (o Options) pageSize() int {
	if o.PageSize == 0 {
		return DefaultPageSize
	}
	return o.PageSize
}

// Export runs a full export of every entity in s (and its M:N
// relationships) into w, reading through p and reporting progress on
// bus. Per-entity failures are recorded in errs and do not abort
// sibling entities. Every M:N relationship is exported afterwards even
// when one of its entities failed; a relationship failure is recorded
// in errs the same way and does not abort the other relationships.
func Export(ctx context.Context, s *schema.Schema, p pool.Pool, w *archive.Writer, bus *report.Bus, errs *report.Builder, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	w.SetSchema(s)

	bus.Dispatch(report.Event{Type: report.EventStart, Message: "export starting"})
	bus.Dispatch(report.Event{Type: report.EventPhaseChange, Phase: report.PhaseExport})

	var failedMu sync.Mutex
	var failedEntities []string
	markFailed := func(name string) {
		failedMu.Lock()
		failedEntities = append(failedEntities, name)
		failedMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range s.Entities {
		e := e
		g.Go(func() error {
			if err := exportEntity(gctx, e, p, w, bus, errs, opts); err != nil {
				errs.Failed(e.Name, zeroUUID, "", report.CategoryUnknown, err)
				markFailed(e.Name)
			}
			return nil // per-record/entity errors never abort the group
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	relG, relGctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool)
	for _, rel := range s.Relationships {
		if seen[rel.Intersect] {
			continue
		}
		seen[rel.Intersect] = true
		rel := rel
		relG.Go(func() error {
			if err := exportRelationship(relGctx, rel, p, w, bus); err != nil {
				errs.Failed(rel.Intersect, zeroUUID, "", report.CategoryUnknown, err)
				markFailed(rel.Intersect)
			}
			return nil
		})
	}
	if err := relG.Wait(); err != nil {
		return err
	}

	if opts.ManifestPath != "" {
		m := &Manifest{ExportedAt: manifestTime(), Complete: len(failedEntities) == 0, Failed: failedEntities}
		if err := WriteManifest(opts.ManifestPath, m); err != nil {
			return err
		}
	}

	bus.Dispatch(report.Event{Type: report.EventEnd, Message: "export complete"})
	return nil
}

// manifestTime is a seam so tests can stamp a deterministic export
// time without reaching for time.Now() directly in business logic.
var manifestTime = func() time.Time { return time.Now().UTC() }

func exportEntity(ctx context.Context, e schema.EntityDescriptor, p pool.Pool, w *archive.Writer, bus *report.Bus, errs *report.Builder, opts Options) error {
	ew := w.EntityWriter(e.Name)
	bus.Dispatch(report.Event{Type: report.EventEntityProgress, Entity: e.Name, Current: 0, Total: 0})
	cookie := ""
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		client, release, err := p.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("exporter: %s: acquire: %w", e.Name, err)
		}
		page, err := client.RetrieveMultiple(ctx, e.Name, opts.pageSize(), cookie)
		release()
		if err != nil {
			return fmt.Errorf("exporter: %s: retrieve: %w", e.Name, err)
		}

		if err := ew.AppendRecords(page.Records); err != nil {
			return fmt.Errorf("exporter: %s: append: %w", e.Name, err)
		}
		for range page.Records {
			errs.Created(e.Name)
		}
		total += len(page.Records)

		bus.Dispatch(report.Event{
			Type:    report.EventEntityProgress,
			Entity:  e.Name,
			Current: total,
			Total:   total,
		})

		if !page.MoreRecords {
			break
		}
		cookie = page.NextCookie
	}

	bus.Dispatch(report.Event{Type: report.EventEntityComplete, Entity: e.Name, OK: total})
	return nil
}

func exportRelationship(ctx context.Context, rel schema.RelationshipDescriptor, p pool.Pool, w *archive.Writer, bus *report.Bus) error {
	bus.Dispatch(report.Event{Type: report.EventRelationshipProgress, Relationship: rel.Intersect, Current: 0, Total: 0})

	ew1 := w.EntityWriter(rel.Entity1)
	cookie := ""
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		client, release, err := p.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("exporter: %s: acquire: %w", rel.Intersect, err)
		}
		page, err := client.RetrieveMultiple(ctx, rel.Intersect, DefaultPageSize, cookie)
		release()
		if err != nil {
			return fmt.Errorf("exporter: %s: retrieve: %w", rel.Intersect, err)
		}

		pairs, err := associationsFromPage(page, rel)
		if err != nil {
			return fmt.Errorf("exporter: %s: %w", rel.Intersect, err)
		}
		if err := ew1.AppendAssociations(rel.Intersect, pairs); err != nil {
			return fmt.Errorf("exporter: %s: append associations: %w", rel.Intersect, err)
		}
		total += len(page.Records)
		bus.Dispatch(report.Event{Type: report.EventRelationshipProgress, Relationship: rel.Intersect, Current: total, Total: total})

		if !page.MoreRecords {
			break
		}
		cookie = page.NextCookie
	}
	return nil
}
