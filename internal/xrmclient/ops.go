package xrmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

type pageResponse struct {
	Records     []wireRecord `json:"records"`
	NextCookie  string       `json:"nextCookie"`
	MoreRecords bool         `json:"moreRecords"`
}

// RetrieveMultiple fetches one page of entity, sending the page size and
// the paging cookie from the previous page (§4.2/§4.5). No page number
// is sent.
func (c *Client) RetrieveMultiple(ctx context.Context, entity string, pageSize int, cookie string) (pool.Page, error) {
	var resp pageResponse
	path := fmt.Sprintf("/api/entities/%s?pageSize=%d&cookie=%s", entity, pageSize, cookie)
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return pool.Page{}, err
	}
	records := make([]*schema.Record, 0, len(resp.Records))
	for _, w := range resp.Records {
		records = append(records, fromWire(entity, w))
	}
	return pool.Page{Records: records, NextCookie: resp.NextCookie, MoreRecords: resp.MoreRecords}, nil
}

type upsertResponse struct {
	ID      uuid.UUID `json:"id"`
	Created bool      `json:"created"`
}

// Upsert writes a single record.
func (c *Client) Upsert(ctx context.Context, r *schema.Record) (pool.UpsertResult, error) {
	w, err := toWire(r)
	if err != nil {
		return pool.UpsertResult{}, err
	}
	var resp upsertResponse
	path := fmt.Sprintf("/api/entities/%s/%s", r.Entity, r.ID)
	if err := c.do(ctx, "PUT", path, w, &resp); err != nil {
		return pool.UpsertResult{}, err
	}
	return pool.UpsertResult{ID: resp.ID, Created: resp.Created}, nil
}

type bulkResultWire struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error,omitempty"`
}

// UpsertMultiple writes records in one batch call, per §4.6's probe-once
// bulk path. A 501 from the backend is surfaced as *pool.NotSupportedError
// so the caller's bulkcap probe can record the negative result.
func (c *Client) UpsertMultiple(ctx context.Context, entity string, records []*schema.Record) ([]pool.BulkResult, error) {
	wires := make([]wireRecord, 0, len(records))
	for _, r := range records {
		w, err := toWire(r)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}
	var resp []bulkResultWire
	path := fmt.Sprintf("/api/entities/%s/upsertMultiple", entity)
	if err := c.do(ctx, "POST", path, wires, &resp); err != nil {
		var nse *pool.NotSupportedError
		if errors.As(err, &nse) {
			return nil, &pool.NotSupportedError{Entity: entity, Op: "UpsertMultiple"}
		}
		return nil, err
	}
	return toBulkResults(resp), nil
}

// Update writes a single record's changed fields.
func (c *Client) Update(ctx context.Context, r *schema.Record) error {
	w, err := toWire(r)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/api/entities/%s/%s", r.Entity, r.ID)
	return c.do(ctx, "PATCH", path, w, nil)
}

// UpdateMultiple patches records in one batch call, per §4.6 phase 4's
// deferred-field pass probe-once path.
func (c *Client) UpdateMultiple(ctx context.Context, entity string, records []*schema.Record) ([]pool.BulkResult, error) {
	wires := make([]wireRecord, 0, len(records))
	for _, r := range records {
		w, err := toWire(r)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}
	var resp []bulkResultWire
	path := fmt.Sprintf("/api/entities/%s/updateMultiple", entity)
	if err := c.do(ctx, "POST", path, wires, &resp); err != nil {
		var nse *pool.NotSupportedError
		if errors.As(err, &nse) {
			return nil, &pool.NotSupportedError{Entity: entity, Op: "UpdateMultiple"}
		}
		return nil, err
	}
	return toBulkResults(resp), nil
}

type associateRequest struct {
	Entity1 string    `json:"entity1"`
	ID1     uuid.UUID `json:"id1"`
	Entity2 string    `json:"entity2"`
	ID2     uuid.UUID `json:"id2"`
}

// Associate creates one M:N intersect row. Duplicate-key responses
// (§4.6.3.e's idempotence rule) are surfaced verbatim; the importer's
// m2m wave is responsible for recognizing and suppressing them.
func (c *Client) Associate(ctx context.Context, relationship, entity1 string, id1 uuid.UUID, entity2 string, id2 uuid.UUID) error {
	path := fmt.Sprintf("/api/relationships/%s/associate", relationship)
	return c.do(ctx, "POST", path, associateRequest{Entity1: entity1, ID1: id1, Entity2: entity2, ID2: id2}, nil)
}

func toBulkResults(wires []bulkResultWire) []pool.BulkResult {
	out := make([]pool.BulkResult, 0, len(wires))
	for _, w := range wires {
		br := pool.BulkResult{ID: w.ID}
		if w.Error != "" {
			br.Err = errors.New(w.Error)
		}
		out = append(out, br)
	}
	return out
}
