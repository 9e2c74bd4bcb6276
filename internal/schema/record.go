package schema

import (
	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

// Record is a single exported/imported row: a map from field logical
// name to its typed Value, plus the record's own GUID (§3).
type Record struct {
	Entity string
	ID     uuid.UUID
	Fields map[string]value.Value
}

// NewRecord returns an empty Record for the given entity/id.
func NewRecord(entity string, id uuid.UUID) *Record {
	return &Record{Entity: entity, ID: id, Fields: make(map[string]value.Value)}
}

// Clone returns a shallow copy of the record with an independent
// Fields map, so callers may elide/remap fields without mutating the
// original (used by the importer when eliding deferred references).
func (r *Record) Clone() *Record {
	out := &Record{Entity: r.Entity, ID: r.ID, Fields: make(map[string]value.Value, len(r.Fields))}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}
