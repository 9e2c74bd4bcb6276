// Package xrmclient is the one concrete pool.Client/metadata.Service
// implementation this module ships: a generic JSON-over-HTTP client
// against a backend environment's REST surface. Every other piece of
// the engine treats the backend as an external collaborator (§6); this
// package exists only so `cmd/migrate` has something real to dial by
// default, grounded on the teacher's internal/rpc.Client — a thin
// transport wrapper carrying a base endpoint, a bearer token, and a
// per-request timeout, with no business logic of its own.
package xrmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

// Config names the environment this client talks to. Credential
// storage and interactive auth are out of scope (§1); Token is taken
// as-is from the caller (typically sourced from an env var or the
// external auth collaborator the CLI delegates to).
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is a single HTTP client bound to one environment. It is safe
// for concurrent use by multiple pool.Bounded slots, like the teacher's
// rpc.Client delegating to a shared *http.Client under its own
// connection pooling.
type Client struct {
	cfg Config
	hc  *http.Client
}

// New returns a Client for cfg. Timeout defaults to 30s if unset.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: timeout}}
}

var _ pool.Client = (*Client)(nil)

// wireRecord is the JSON shape exchanged with the backend: one level
// of field->text plus the lookupentity attribute for reference fields,
// mirroring the archive's own text encoding (§4.3) so the same
// value.Encode/Decode pair serves both paths.
type wireRecord struct {
	ID     uuid.UUID         `json:"id"`
	Fields map[string]string `json:"fields"`
	Lookup map[string]string `json:"lookupEntities,omitempty"`
}

func toWire(r *schema.Record) (wireRecord, error) {
	w := wireRecord{ID: r.ID, Fields: make(map[string]string, len(r.Fields)), Lookup: make(map[string]string)}
	for name, v := range r.Fields {
		enc, err := value.Encode(v)
		if err != nil {
			continue // PartyList and other values Encode rejects are left out of the request
		}
		if enc.IsNull {
			continue
		}
		w.Fields[name] = enc.Text
		if enc.LookupEntity != "" {
			w.Lookup[name] = enc.LookupEntity
		}
	}
	return w, nil
}

// fromWire converts a wire-format record back into a *schema.Record.
// The generic transport carries every non-reference field as text; it
// has no schema in hand to pick a precise Value variant, so it decodes
// plain fields as value.String and lets the exporter's archive layer
// (which does have the schema) re-encode through value.Decode with the
// real declared type when the bundle is later read back for import.
func fromWire(entity string, w wireRecord) *schema.Record {
	r := schema.NewRecord(entity, w.ID)
	for name, text := range w.Fields {
		if entity, ok := w.Lookup[name]; ok {
			id, err := uuid.Parse(text)
			if err != nil {
				continue
			}
			r.Fields[name] = value.Reference{Entity: entity, ID: id}
			continue
		}
		r.Fields[name] = value.String(text)
	}
	return r
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("xrmclient: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("xrmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &pool.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(resp.Body)
		return &pool.AuthError{Status: resp.StatusCode, Msg: string(msg)}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &pool.ThrottledError{RetryAfter: resp.Header.Get("Retry-After")}
	}
	if resp.StatusCode == http.StatusNotImplemented {
		return &pool.NotSupportedError{Op: path}
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("xrmclient: %s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("xrmclient: decode response: %w", err)
	}
	return nil
}
