// Package pool defines the narrow external contract for the target
// environment's connection pool (C5, §4.5): a bounded-concurrency
// acquire/release resource guarding a Client that performs the actual
// CRUD/bulk operations. A live Client talking to a real CRM endpoint
// is an external collaborator; Bounded provides the concurrency-bound
// plumbing around any Client implementation, grounded on the teacher's
// scoped-resource idiom (acquire, use, release-via-closer) previously
// expressed in its file-lock helper.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// Page is one page of retrieved records plus a paging cookie for the
// next call, per §4.2's paging protocol (page number + cookie).
type Page struct {
	Records     []*schema.Record
	NextCookie  string
	MoreRecords bool
}

// UpsertResult reports the outcome of a single-record write.
type UpsertResult struct {
	ID      uuid.UUID
	Created bool // false means the record already existed and was updated
}

// BulkResult reports the outcome of one record within a bulk
// (UpsertMultiple/UpdateMultiple) call: the backend may accept some
// records and reject others within the same batch.
type BulkResult struct {
	ID  uuid.UUID
	Err error // non-nil marks this specific record as rejected
}

// ThrottledError marks a backend rate-limit response. Throttling is
// retried distinctly from timeouts (§5): callers back off and retry up
// to their configured bound instead of failing the operation outright.
// RetryAfter carries the backend's suggested delay verbatim when it
// supplied one.
type ThrottledError struct {
	RetryAfter string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("pool: throttled (retry-after=%s)", e.RetryAfter)
}

// AuthError marks an authentication or authorization rejection from
// the backend. Session-fatal (§7): callers abort the whole run rather
// than retrying per record.
type AuthError struct {
	Status int
	Msg    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("pool: auth failure (status %d): %s", e.Status, e.Msg)
}

// NetworkError marks a transport-level failure reaching the backend.
// Session-fatal like AuthError.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("pool: network failure: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// NotSupportedError is returned by a bulk operation when the backend
// does not support it for the entity, per §4.6/§9's probe-once
// adaptation: the caller must fall back to one-by-one writes and
// record this as BulkNotSupported so bulkcap can cache the negative
// result.
type NotSupportedError struct {
	Entity string
	Op     string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("pool: %s not supported for entity %q", e.Op, e.Entity)
}

// Client performs the actual operations against one target
// environment. Every Client obtained from a Pool is scoped to a single
// concurrent slot; callers must not retain it past the paired release.
type Client interface {
	RetrieveMultiple(ctx context.Context, entity string, pageSize int, cookie string) (Page, error)
	Upsert(ctx context.Context, r *schema.Record) (UpsertResult, error)
	UpsertMultiple(ctx context.Context, entity string, records []*schema.Record) ([]BulkResult, error)
	Update(ctx context.Context, r *schema.Record) error
	UpdateMultiple(ctx context.Context, entity string, records []*schema.Record) ([]BulkResult, error)
	Associate(ctx context.Context, relationship, entity1 string, id1 uuid.UUID, entity2 string, id2 uuid.UUID) error
}

// Pool hands out DOP-bounded, scoped Clients.
type Pool interface {
	// Acquire blocks until a concurrency slot is available or ctx is
	// cancelled. The returned release func must be called exactly once
	// to return the slot.
	Acquire(ctx context.Context) (Client, func(), error)
}

// Stats accumulates simple per-call latency observations. It is read
// as a snapshot via Bounded.Stats; no progress event carries it.
type Stats struct {
	Calls        int64
	TotalLatency time.Duration
}
