package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// noopClient backs `migrate import --dry-run`: it accepts every write
// as a bulk-capable create, echoing the record's own id back as the
// new id, so an operator can exercise the full tier/deferred-pass plan
// against the bundle's own schema with no live target environment.
type noopClient struct{}

var _ pool.Client = (*noopClient)(nil)

func (*noopClient) RetrieveMultiple(context.Context, string, int, string) (pool.Page, error) {
	return pool.Page{}, nil
}

func (*noopClient) Upsert(_ context.Context, r *schema.Record) (pool.UpsertResult, error) {
	return pool.UpsertResult{ID: r.ID, Created: true}, nil
}

func (*noopClient) UpsertMultiple(_ context.Context, _ string, records []*schema.Record) ([]pool.BulkResult, error) {
	out := make([]pool.BulkResult, len(records))
	for i, r := range records {
		out[i] = pool.BulkResult{ID: r.ID}
	}
	return out, nil
}

func (*noopClient) Update(context.Context, *schema.Record) error { return nil }

func (*noopClient) UpdateMultiple(_ context.Context, _ string, records []*schema.Record) ([]pool.BulkResult, error) {
	out := make([]pool.BulkResult, len(records))
	for i, r := range records {
		out[i] = pool.BulkResult{ID: r.ID}
	}
	return out, nil
}

func (*noopClient) Associate(context.Context, string, string, uuid.UUID, string, uuid.UUID) error {
	return nil
}
