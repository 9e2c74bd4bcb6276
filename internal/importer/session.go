package importer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/bulkcap"
	"github.com/dataplane-tools/xrm-migrate/internal/depgraph"
	"github.com/dataplane-tools/xrm-migrate/internal/idmap"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// session carries the mutable state of one import run across all five
// phases: the IdMap and BulkCapability caches (§5 shared resources),
// the error report builder, and bookkeeping for which entities have
// completed their write wave (gating the M:N wave, §4.6.3.e).
type session struct {
	ctx    context.Context
	bundle *archive.Reader
	schema *schema.Schema
	valid  map[string]*validEntity
	idmap  *idmap.IdMap
	caps   *bulkcap.Cache
	pool   pool.Pool
	bus    *report.Bus
	errs   *report.Builder
	opts   Options

	mu             sync.Mutex
	completed      map[string]bool
	deferred       []pendingDeferred
	associatedRels map[string]bool
	fatal          error

	ownerFields map[string]bool // "entity\x00field" -> true, from Options.OwnerFieldsByEntity
}

// isOwnerField reports whether field on entity is declared as an
// owning-user reference by Options.OwnerFieldsByEntity (§6 user-mapping
// contract), lazily indexing the option on first use.
func (s *session) isOwnerField(entity, field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerFields == nil {
		s.ownerFields = make(map[string]bool)
		for e, fields := range s.opts.OwnerFieldsByEntity {
			for _, f := range fields {
				s.ownerFields[e+"\x00"+f] = true
			}
		}
	}
	return s.ownerFields[entity+"\x00"+field]
}

// pendingDeferred is one elided reference field awaiting the post-tier
// deferred pass: the record and field it belongs to, plus the target
// entity/old-id it must eventually remap to a new id through the IdMap.
type pendingDeferred struct {
	entity       string
	recordID     uuid.UUID
	field        string
	targetEntity string
	targetOldID  uuid.UUID
}

func (s *session) markCompleted(entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed == nil {
		s.completed = make(map[string]bool)
	}
	s.completed[entity] = true
}

func (s *session) isCompleted(entity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[entity]
}

func (s *session) addDeferred(d pendingDeferred) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred = append(s.deferred, d)
}

// setFatal records a session-fatal error (§7: AuthFailure,
// NetworkFailure). First observation wins; once set, no new batches,
// tiers, or waves start — in-flight work drains and the report is
// still written.
func (s *session) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *session) fatalError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// runTier executes one tier's entity write wave (bounded fan-out) then
// its M:N wave for any relationship whose both endpoints have now
// completed.
func (s *session) runTier(tier depgraph.Tier) {
	deferredFieldSet := make(map[[2]string]bool, len(tier.DeferredFields))
	for _, e := range tier.DeferredFields {
		deferredFieldSet[[2]string{e.Entity, e.Field}] = true
	}
	tierMembers := make(map[string]bool, len(tier.Entities))
	for _, e := range tier.Entities {
		tierMembers[e] = true
	}

	dop := s.opts.maxParallelEntities(s.poolDOP())
	sem := make(chan struct{}, dop)
	var wg sync.WaitGroup
	for _, entityName := range tier.Entities {
		entityName := entityName
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if s.fatalError() != nil {
				return
			}
			s.writeEntity(entityName, tierMembers, deferredFieldSet)
			s.markCompleted(entityName)
		}()
	}
	wg.Wait()

	s.runM2MWave()
}

// fallbackDOP is used only when the pool does not advertise its own
// degree of parallelism (no DOP() method), e.g. a caller's bespoke
// Pool implementation in tests.
const fallbackDOP = 4

// dopProvider is implemented by pool.Bounded; asserted against here
// rather than added to the pool.Pool interface so that minimal test
// doubles need not implement it.
type dopProvider interface {
	DOP() int
}

func (s *session) poolDOP() int {
	if dp, ok := s.pool.(dopProvider); ok {
		return dp.DOP()
	}
	return fallbackDOP
}

// finalize builds the Result from accumulated session state.
func (s *session) finalize() *Result {
	rep := s.errs.Finalize(report.ExecutionContext{
		CLIVersion: s.opts.CLIVersion,
		SDKVersion: s.opts.SDKVersion,
		Runtime:    "go",
		Platform:   "xrm-migrate",
		ImportMode: string(s.opts.mode()),
		Options:    map[string]interface{}{"batchSize": s.opts.batchSize(), "maxRetries": s.opts.maxRetries()},
	})
	created, updated, skipped, failed := 0, 0, 0, 0
	for _, e := range rep.Entities {
		created += e.Created
		updated += e.Updated
		skipped += e.Skipped
		failed += e.Failed
	}
	return &Result{IDMap: s.idmap, Report: rep, Created: created, Updated: updated, Skipped: skipped, Failed: failed}
}
