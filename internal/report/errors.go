package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Category is the error taxonomy of §7.
type Category string

const (
	CategorySchemaInvalid           Category = "SchemaInvalid"
	CategorySchemaMismatch          Category = "SchemaMismatch"
	CategoryTypeAmbiguous           Category = "TypeAmbiguous"
	CategoryMetadataUnavailable     Category = "MetadataUnavailable"
	CategoryThrottledRetryExhausted Category = "ThrottledRetryExhausted"
	CategoryReferenceUnmapped       Category = "ReferenceUnmapped"
	CategorySelfReferenceDeferred   Category = "SelfReferenceDeferred"
	CategoryBulkNotSupported        Category = "BulkNotSupported"
	CategoryDuplicateKeyIgnored     Category = "DuplicateKeyIgnored"
	CategoryAuthFailure             Category = "AuthFailure"
	CategoryNetworkFailure          Category = "NetworkFailure"
	CategoryCancelled               Category = "Cancelled"
	CategoryUnknown                 Category = "Unknown"
)

// Retryable reports whether a retry of the operation that produced
// this category might succeed.
func (c Category) Retryable() bool {
	switch c {
	case CategoryThrottledRetryExhausted, CategoryNetworkFailure, CategoryMetadataUnavailable:
		return true
	default:
		return false
	}
}

// RecordError is a single per-record error entry (§6 error report
// schema).
type RecordError struct {
	RecordID  string   `json:"recordId"`
	Field     string   `json:"field,omitempty"`
	Category  Category `json:"category"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
}

// EntitySummary aggregates one entity's import/export outcome.
type EntitySummary struct {
	Entity  string        `json:"entity"`
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Errors  []RecordError `json:"errors"`
}

// ExecutionContext records the runtime circumstances a report was
// generated under, per §6.
type ExecutionContext struct {
	CLIVersion string                 `json:"cliVersion"`
	SDKVersion string                 `json:"sdkVersion"`
	Runtime    string                 `json:"runtime"`
	Platform   string                 `json:"platform"`
	ImportMode string                 `json:"importMode"`
	Options    map[string]interface{} `json:"options"`
}

// ErrorReport is the v1.1 structured report artifact.
type ErrorReport struct {
	Version          string           `json:"version"`
	ExecutionContext ExecutionContext `json:"executionContext"`
	Entities         []EntitySummary  `json:"entities"`
}

// Builder accumulates an ErrorReport across concurrent workers.
// Per-entity mutation is append-only and safe from any goroutine;
// Finalize is expected to run single-threaded at a phase boundary,
// mirroring §6's "ErrorReport builder: append-only from any worker;
// finalization is single-threaded at phase boundary" design note.
type Builder struct {
	mu       sync.Mutex
	byEntity map[string]*EntitySummary
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{byEntity: make(map[string]*EntitySummary)}
}

func (b *Builder) entry(entity string) *EntitySummary {
	s, ok := b.byEntity[entity]
	if !ok {
		s = &EntitySummary{Entity: entity}
		b.byEntity[entity] = s
	}
	return s
}

// Created records one successfully created record for entity.
func (b *Builder) Created(entity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(entity).Created++
}

// Updated records one successfully updated record for entity.
func (b *Builder) Updated(entity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(entity).Updated++
}

// Skipped records one skipped record for entity.
func (b *Builder) Skipped(entity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(entity).Skipped++
}

// Failed records one failed record with its classified error.
func (b *Builder) Failed(entity string, recordID uuid.UUID, field string, cat Category, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.entry(entity)
	s.Failed++
	s.Errors = append(s.Errors, RecordError{
		RecordID:  recordID.String(),
		Field:     field,
		Category:  cat,
		Message:   err.Error(),
		Retryable: cat.Retryable(),
	})
}

// Warning records a classified, non-fatal condition for entity (e.g. a
// stripped SchemaMismatch field): it appears in the entity's error
// list for the report reader, but does not count any record as failed.
func (b *Builder) Warning(entity string, recordID uuid.UUID, field string, cat Category, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(entity).Errors = append(b.entry(entity).Errors, RecordError{
		RecordID:  recordID.String(),
		Field:     field,
		Category:  cat,
		Message:   err.Error(),
		Retryable: cat.Retryable(),
	})
}

// Finalize produces the immutable ErrorReport, with entities sorted by
// name for deterministic output.
func (b *Builder) Finalize(ctx ExecutionContext) *ErrorReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.byEntity))
	for name := range b.byEntity {
		names = append(names, name)
	}
	sort.Strings(names)
	entities := make([]EntitySummary, 0, len(names))
	for _, name := range names {
		entities = append(entities, *b.byEntity[name])
	}
	return &ErrorReport{Version: "1.1", ExecutionContext: ctx, Entities: entities}
}

// WriteFile writes r as indented JSON to path.
func (r *ErrorReport) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
