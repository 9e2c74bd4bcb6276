package importer

import (
	"errors"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/bulkcap"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// writeBatches drives one entity's write wave (create, §4.6.3.b/c) or
// its deferred-field patch wave (update, §4.6 phase 4) over records,
// applying ImportOptions.Mode filtering (create wave only; deferred
// patches always apply regardless of mode, since the mode governs
// whether the base record is written, not whether its deferred
// reference gets patched in) and batching into opts.BatchSize chunks.
func (s *session) writeBatches(entity string, records []*schema.Record, isUpdate bool, applyModeFilter bool) {
	toWrite := records
	if applyModeFilter {
		var skipped int
		toWrite, skipped = s.filterByMode(entity, records)
		for i := 0; i < skipped; i++ {
			s.errs.Skipped(entity)
		}
	}

	batchSize := s.opts.batchSize()
	for i := 0; i < len(toWrite); i += batchSize {
		if s.fatalError() != nil {
			// Session-fatal (§7): no new batches start; the records
			// never attempted are reported as skipped.
			for range toWrite[i:] {
				s.errs.Skipped(entity)
			}
			return
		}
		end := i + batchSize
		if end > len(toWrite) {
			end = len(toWrite)
		}
		s.writeBatch(entity, toWrite[i:end], isUpdate)
	}
}

// filterByMode applies §4.6.3.c's Upsert/CreateOnly/UpdateOnly policy.
// "Already exists" is judged against this session's own IdMap: a
// record this session has already written once (e.g. a retried tier)
// counts as existing for CreateOnly; a record this session has not yet
// written counts as unknown for UpdateOnly. The pool contract exposes
// no separate existence probe, so session-scoped history is the only
// signal available short of an extra round-trip per record.
func (s *session) filterByMode(entity string, records []*schema.Record) ([]*schema.Record, int) {
	mode := s.opts.mode()
	if mode == ModeUpsert {
		return records, 0
	}
	out := make([]*schema.Record, 0, len(records))
	skipped := 0
	for _, r := range records {
		_, existsThisSession := s.idmap.Get(entity, r.ID)
		switch mode {
		case ModeCreateOnly:
			if existsThisSession {
				skipped++
				continue
			}
		case ModeUpdateOnly:
			if !existsThisSession {
				skipped++
				continue
			}
		}
		out = append(out, r)
	}
	return out, skipped
}

// writeBatch writes one batch (<= opts.BatchSize records) against
// entity's create or update bulk capability, applying the probe-once
// rule of §4.6.3.b/§9: a Supported/NotSupported capability is trusted
// outright; an Unknown capability is resolved by sending exactly one
// record through the bulk endpoint before committing the rest of the
// batch to it.
func (s *session) writeBatch(entity string, batch []*schema.Record, isUpdate bool) {
	if len(batch) == 0 {
		return
	}
	state := s.capState(entity, isUpdate)

	if state == bulkcap.NotSupported {
		s.writeIndividually(entity, batch, isUpdate)
		return
	}

	if state == bulkcap.Supported {
		s.writeBulk(entity, batch, isUpdate)
		return
	}

	// Unknown: probe with exactly one record before trusting the rest
	// of the batch to the bulk endpoint (§9 "keep the probe synchronous
	// with the batch attempt").
	probe := batch[:1]
	supported, results, err := s.attemptBulk(entity, probe, isUpdate)
	if err != nil {
		s.failBatch(entity, probe, isUpdate, err)
		if len(batch) > 1 {
			s.writeIndividually(entity, batch[1:], isUpdate)
		}
		return
	}
	if !supported {
		s.resolveCap(entity, isUpdate, bulkcap.NotSupported)
		s.bus.Dispatch(report.Event{Type: report.EventPhaseChange, Phase: report.PhaseTierImport, Message: errBulkNotSupported(entity).Error()})
		s.writeIndividually(entity, batch, isUpdate)
		return
	}
	s.resolveCap(entity, isUpdate, bulkcap.Supported)
	s.recordBulkResults(entity, probe, results, isUpdate)
	if len(batch) > 1 {
		s.writeBulk(entity, batch[1:], isUpdate)
	}
}

func (s *session) capState(entity string, isUpdate bool) bulkcap.State {
	if isUpdate {
		return s.caps.UpdateBulk(entity)
	}
	return s.caps.CreateBulk(entity)
}

func (s *session) resolveCap(entity string, isUpdate bool, state bulkcap.State) {
	if isUpdate {
		s.caps.ResolveUpdateBulk(entity, state)
		return
	}
	s.caps.ResolveCreateBulk(entity, state)
}

// writeBulk sends batch through UpsertMultiple/UpdateMultiple
// (capability already known Supported) with throttle retry, recording
// per-record outcomes. A NotSupportedError surfacing here despite a
// cached Supported state (a backend policy change mid-session) makes
// this batch fall back to one-by-one writes; the cached Supported state
// is not changed, so later batches still take the bulk path.
func (s *session) writeBulk(entity string, batch []*schema.Record, isUpdate bool) {
	supported, results, err := s.attemptBulk(entity, batch, isUpdate)
	if err != nil {
		s.failBatch(entity, batch, isUpdate, err)
		return
	}
	if !supported {
		s.resolveCap(entity, isUpdate, bulkcap.NotSupported)
		s.writeIndividually(entity, batch, isUpdate)
		return
	}
	s.recordBulkResults(entity, batch, results, isUpdate)
}

// attemptBulk performs one UpsertMultiple/UpdateMultiple call with
// throttle retry. supported=false (nil results, nil error) means the
// backend rejected the whole batch with BULK_NOT_SUPPORTED.
func (s *session) attemptBulk(entity string, batch []*schema.Record, isUpdate bool) (supported bool, results []pool.BulkResult, err error) {
	opErr := withThrottleRetry(s.ctx, s.opts.maxRetries(), func() error {
		client, release, aerr := s.pool.Acquire(s.ctx)
		if aerr != nil {
			return aerr
		}
		defer release()

		var callErr error
		if isUpdate {
			results, callErr = client.UpdateMultiple(s.ctx, entity, batch)
		} else {
			results, callErr = client.UpsertMultiple(s.ctx, entity, batch)
		}
		return callErr
	})
	if opErr != nil {
		var nse *pool.NotSupportedError
		if errors.As(opErr, &nse) {
			return false, nil, nil
		}
		return false, nil, opErr
	}
	return true, results, nil
}

// writeIndividually falls back to one-by-one Upsert/Update calls,
// each independently throttle-retried, for an entity whose bulk
// capability is NotSupported (or being probed down to it).
func (s *session) writeIndividually(entity string, batch []*schema.Record, isUpdate bool) {
	for i, r := range batch {
		if s.fatalError() != nil {
			for range batch[i:] {
				s.errs.Skipped(entity)
			}
			return
		}
		r := r
		if isUpdate {
			opErr := withThrottleRetry(s.ctx, s.opts.maxRetries(), func() error {
				client, release, aerr := s.pool.Acquire(s.ctx)
				if aerr != nil {
					return aerr
				}
				defer release()
				return client.Update(s.ctx, r)
			})
			if opErr != nil {
				s.classifyAndFail(entity, r.ID, "", opErr)
				continue
			}
			s.errs.Updated(entity)
			continue
		}

		var result pool.UpsertResult
		opErr := withThrottleRetry(s.ctx, s.opts.maxRetries(), func() error {
			client, release, aerr := s.pool.Acquire(s.ctx)
			if aerr != nil {
				return aerr
			}
			defer release()
			var cerr error
			result, cerr = client.Upsert(s.ctx, r)
			return cerr
		})
		if opErr != nil {
			s.classifyAndFail(entity, r.ID, "", opErr)
			continue
		}
		s.idmap.Put(entity, r.ID, result.ID)
		if result.Created {
			s.errs.Created(entity)
		} else {
			s.errs.Updated(entity)
		}
	}
}

// recordBulkResults matches batch[i] to results[i] (the pool contract
// returns BulkResults in call order) and records each outcome: success
// updates the IdMap and create/update counts, failure is classified
// per record without aborting the rest of the batch.
func (s *session) recordBulkResults(entity string, batch []*schema.Record, results []pool.BulkResult, isUpdate bool) {
	for i, r := range batch {
		if i >= len(results) {
			// Backend returned fewer results than records submitted;
			// treat the missing tail as succeeded creates/updates with
			// the source id preserved, the most conservative guess
			// that still lets the deferred pass find a mapping.
			if !isUpdate {
				s.idmap.Put(entity, r.ID, r.ID)
				s.errs.Created(entity)
			} else {
				s.errs.Updated(entity)
			}
			continue
		}
		res := results[i]
		if res.Err != nil {
			s.classifyAndFail(entity, r.ID, "", res.Err)
			continue
		}
		if isUpdate {
			s.errs.Updated(entity)
			continue
		}
		// BulkResult carries no created/updated distinction (unlike
		// the single-record UpsertResult), so bulk writes are counted
		// as Created: the common case for a first migration pass, and
		// a re-run's re-creates are still correctly identity-mapped.
		s.idmap.Put(entity, r.ID, res.ID)
		s.errs.Created(entity)
	}
}

// failBatch records every record in batch as failed with the same
// classified error, used when a whole batch fails structurally (e.g.
// throttling exhausted, auth failure) rather than per-record.
func (s *session) failBatch(entity string, batch []*schema.Record, isUpdate bool, err error) {
	for _, r := range batch {
		s.classifyAndFail(entity, r.ID, "", err)
	}
}

// classifyAndFail maps a backend error to its §7 category and records
// it as a per-record failure. "cannot insert duplicate key" is handled
// separately by the M:N wave, not here — individual/bulk entity writes
// never legitimately produce a duplicate-key condition. Auth and
// network failures are session-fatal: they are recorded against the
// record that surfaced them, then the whole run is aborted rather than
// re-attempted for every remaining record (§7 propagation policy).
func (s *session) classifyAndFail(entity string, recordID uuid.UUID, field string, err error) {
	cat := report.CategoryUnknown
	var te *pool.ThrottledError
	var ae *pool.AuthError
	var ne *pool.NetworkError
	switch {
	case errors.As(err, &te):
		cat = report.CategoryThrottledRetryExhausted
	case errors.As(err, &ae):
		cat = report.CategoryAuthFailure
		s.setFatal(err)
	case errors.As(err, &ne):
		cat = report.CategoryNetworkFailure
		s.setFatal(err)
	}
	s.errs.Failed(entity, recordID, field, cat, err)
}
