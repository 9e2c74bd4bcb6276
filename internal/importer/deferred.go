package importer

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

// runDeferredPass applies every elided reference field queued during
// the tier loop (§4.6 phase 4): once every tier has completed, every
// record and every reference target now has a final mapped id, so
// self- and cycle-references can be patched in with UpdateMultiple
// batches per entity. Mode filtering never applies here — a deferred
// patch targets a record this session already wrote, regardless of
// ImportOptions.Mode.
func (s *session) runDeferredPass() {
	byEntity := make(map[string]map[uuid.UUID]*schema.Record)
	order := make([]string, 0)

	for _, d := range s.deferred {
		newSelfID, ok := s.idmap.Get(d.entity, d.recordID)
		if !ok {
			// The record itself never wrote successfully; nothing to
			// patch.
			continue
		}
		newTargetID, ok := s.idmap.Get(d.targetEntity, d.targetOldID)
		if !ok {
			s.errs.Failed(d.entity, newSelfID, d.field, report.CategoryReferenceUnmapped, errReferenceUnmapped(d.field, d.targetEntity))
			continue
		}

		byRecord, ok := byEntity[d.entity]
		if !ok {
			byRecord = make(map[uuid.UUID]*schema.Record)
			byEntity[d.entity] = byRecord
			order = append(order, d.entity)
		}
		rec, ok := byRecord[newSelfID]
		if !ok {
			rec = schema.NewRecord(d.entity, newSelfID)
			byRecord[newSelfID] = rec
		}
		rec.Fields[d.field] = value.Reference{Entity: d.targetEntity, ID: newTargetID}
	}

	sort.Strings(order)
	for _, entity := range order {
		byRecord := byEntity[entity]
		records := make([]*schema.Record, 0, len(byRecord))
		for _, rec := range byRecord {
			records = append(records, rec)
		}
		s.writeBatches(entity, records, true, false)
	}
}
