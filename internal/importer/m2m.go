package importer

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// runM2MWave associates every M:N relationship whose both endpoints
// have completed their write wave, in the current tier or any earlier
// one, and have not already been associated (§4.6.3.e, §5 ordering
// guarantees). Called after every tier's entity write wave, so a
// relationship runs as soon as both its endpoints become ready rather
// than waiting for the whole import to finish.
func (s *session) runM2MWave() {
	if s.fatalError() != nil {
		return
	}
	var ready []schema.RelationshipDescriptor
	for _, rel := range s.schema.Relationships {
		if s.markAssociatedIfReady(rel) {
			ready = append(ready, rel)
		}
	}
	if len(ready) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(s.ctx)
	for _, rel := range ready {
		rel := rel
		g.Go(func() error {
			s.associateRelationship(ctx, rel)
			return nil // per-pair failures never abort the wave
		})
	}
	_ = g.Wait()
}

// markAssociatedIfReady atomically checks readiness and claims rel for
// association in one locked step, so two tiers racing to complete
// the same relationship's endpoints never both run it.
func (s *session) markAssociatedIfReady(rel schema.RelationshipDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.associatedRels == nil {
		s.associatedRels = make(map[string]bool)
	}
	if s.associatedRels[rel.Intersect] {
		return false
	}
	if !s.completed[rel.Entity1] || !s.completed[rel.Entity2] {
		return false
	}
	s.associatedRels[rel.Intersect] = true
	return true
}

// associateRelationship replays one relationship's intersect-table
// pairs against the target, remapping both endpoints through the
// IdMap. Associations are idempotent (§4.6.3.e, §8): a "duplicate key"
// response is counted as success, not failure. Pairs whose endpoint is
// absent from the IdMap (the source record failed to write) are
// counted as ReferenceUnmapped failures rather than attempted.
func (s *session) associateRelationship(ctx context.Context, rel schema.RelationshipDescriptor) {
	assocs, err := s.bundle.EntityAssociations(rel.Entity1)
	if err != nil {
		s.errs.Failed(rel.Intersect, zeroRecordID, "", report.CategoryUnknown, err)
		return
	}

	var pairs [][2]uuid.UUID
	for _, a := range assocs {
		if a.Relationship != rel.Intersect {
			continue
		}
		for _, p := range a.Pairs {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			s.associatePair(gctx, rel, pair)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *session) associatePair(ctx context.Context, rel schema.RelationshipDescriptor, pair [2]uuid.UUID) {
	id1, ok1 := s.idmap.Get(rel.Entity1, pair[0])
	id2, ok2 := s.idmap.Get(rel.Entity2, pair[1])
	if !ok1 || !ok2 {
		missing := rel.Entity1
		if ok1 {
			missing = rel.Entity2
		}
		s.errs.Failed(rel.Intersect, zeroRecordID, "", report.CategoryReferenceUnmapped, errReferenceUnmapped(rel.Intersect, missing))
		return
	}

	opErr := withThrottleRetry(ctx, s.opts.maxRetries(), func() error {
		client, release, aerr := s.pool.Acquire(ctx)
		if aerr != nil {
			return aerr
		}
		defer release()
		return client.Associate(ctx, rel.Intersect, rel.Entity1, id1, rel.Entity2, id2)
	})
	if opErr == nil {
		s.errs.Updated(rel.Intersect)
		return
	}
	if strings.Contains(strings.ToLower(opErr.Error()), "duplicate key") {
		s.errs.Updated(rel.Intersect) // idempotent: already associated
		return
	}
	s.classifyAndFail(rel.Intersect, zeroRecordID, "", opErr)
}
