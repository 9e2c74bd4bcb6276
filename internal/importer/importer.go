// Package importer implements the tiered importer (C10, §4.6): a
// five-phase best-effort import that preserves referential integrity
// across dependency cycles, adapts to whatever bulk-write capability
// the target entity actually supports, and remaps every record's GUID
// through the target's own identity space. The Options/Result shape
// (explicit struct in, explicit struct out, an ID-mapping field
// carrying the old→new remap) is grounded directly on the teacher's
// importer.Options/importer.Result pair — generalized from a single
// SQLite-backed issue tracker import to an arbitrary schema-driven
// entity import against a pooled remote backend.
package importer

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/bulkcap"
	"github.com/dataplane-tools/xrm-migrate/internal/depgraph"
	"github.com/dataplane-tools/xrm-migrate/internal/idmap"
	"github.com/dataplane-tools/xrm-migrate/internal/metadata"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// Mode selects how an existing-id collision is handled, per §4.6.3.c.
type Mode string

const (
	ModeUpsert     Mode = "Upsert"
	ModeCreateOnly Mode = "CreateOnly"
	ModeUpdateOnly Mode = "UpdateOnly"
)

// Options configures a single import run.
type Options struct {
	Mode Mode

	// BatchSize is the number of records per bulk write attempt.
	// Default 200.
	BatchSize int

	// MaxParallelEntities caps concurrent entity waves within a tier.
	// Default equals the pool's DOP; must be >= 1.
	MaxParallelEntities int

	// MaxRetries bounds THROTTLED retry attempts. Default 5.
	MaxRetries int

	// CLIVersion/SDKVersion are surfaced verbatim in the ErrorReport's
	// executionContext.
	CLIVersion string
	SDKVersion string

	// Owner mapping (§6 user-mapping contract): OwnerFieldsByEntity
	// names which reference fields on each entity hold an owning-user
	// reference; those fields are remapped through UserMap before
	// write, falling back to OwnerFallback (or left as-is if the zero
	// value) when unmapped.
	OwnerFieldsByEntity map[string][]string
	UserMap             map[uuid.UUID]uuid.UUID
	OwnerFallback       uuid.UUID
}

const (
	DefaultBatchSize  = 200
	DefaultMaxRetries = 5
)

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func (o Options) maxRetries() int {
	if o.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return o.MaxRetries
}

func (o Options) mode() Mode {
	if o.Mode == "" {
		return ModeUpsert
	}
	return o.Mode
}

func (o Options) maxParallelEntities(dop int) int {
	if o.MaxParallelEntities <= 0 {
		if dop < 1 {
			return 1
		}
		return dop
	}
	return o.MaxParallelEntities
}

// Result summarizes a completed import run.
type Result struct {
	IDMap   *idmap.IdMap
	Report  *report.ErrorReport
	Created int
	Updated int
	Skipped int
	Failed  int
}

// Run drives the full five-phase import of bundle into p, guided by
// md and opts, reporting progress on bus. A session-fatal backend
// error (auth rejection, transport failure) aborts the run after the
// in-flight wave drains: Run then returns a non-nil error together
// with a non-nil Result, so the caller still has the ErrorReport to
// write (§7: "the report is still written").
func Run(ctx context.Context, bundle *archive.Reader, md metadata.Service, p pool.Pool, bus *report.Bus, opts Options) (*Result, error) {
	bus.Dispatch(report.Event{Type: report.EventStart, Message: "import starting"})

	im := idmap.New()
	caps := bulkcap.New()
	errs := report.NewBuilder()

	// Phase 1: SchemaValidate.
	bus.Dispatch(report.Event{Type: report.EventPhaseChange, Phase: report.PhaseSchemaValidate})
	srcSchema, err := bundle.Schema()
	if err != nil {
		return nil, fmt.Errorf("importer: read schema: %w", err)
	}
	bundleEntities := bundle.Entities()
	valid := validateSchema(ctx, srcSchema, bundleEntities, md, errs)

	// Phase 2: Plan.
	bus.Dispatch(report.Event{Type: report.EventPhaseChange, Phase: report.PhasePlan})
	extra := extraEntities(srcSchema, bundleEntities)
	plan := depgraph.Build(srcSchema, extra)

	sess := &session{
		ctx:    ctx,
		bundle: bundle,
		schema: srcSchema,
		valid:  valid,
		idmap:  im,
		caps:   caps,
		pool:   p,
		bus:    bus,
		errs:   errs,
		opts:   opts,
	}

	// Phase 3: Tier loop.
	bus.Dispatch(report.Event{Type: report.EventPhaseChange, Phase: report.PhaseTierImport})
	for _, tier := range plan.Tiers {
		if err := ctx.Err(); err != nil {
			bus.Dispatch(report.Event{Type: report.EventCancelled, Message: err.Error()})
			return sess.finalize(), nil
		}
		if sess.fatalError() != nil {
			break
		}
		sess.runTier(tier)
	}

	// Phase 4: Deferred-field pass.
	if sess.fatalError() == nil {
		bus.Dispatch(report.Event{Type: report.EventPhaseChange, Phase: report.PhaseDeferredPass})
		sess.runDeferredPass()
	}

	// Phase 5: Report.
	bus.Dispatch(report.Event{Type: report.EventPhaseChange, Phase: report.PhaseReport})
	result := sess.finalize()
	if ferr := sess.fatalError(); ferr != nil {
		bus.Dispatch(report.Event{Type: report.EventEnd, Message: "import aborted: " + ferr.Error()})
		return result, ferr
	}
	bus.Dispatch(report.Event{Type: report.EventEnd, Message: "import complete"})
	return result, nil
}

// extraEntities returns bundle entities absent from the schema, sorted
// ascending, per §4.6 Plan.
func extraEntities(s *schema.Schema, bundleEntities []string) []string {
	var extra []string
	for _, name := range bundleEntities {
		if !s.HasEntity(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}
