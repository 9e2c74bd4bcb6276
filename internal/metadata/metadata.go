// Package metadata defines the narrow external contract for the
// Metadata Service (C4, §6): field metadata, option-set values,
// alternate keys, and M:N relationship metadata for a live
// environment. Per spec.md §2, only the interface is specified here;
// a live implementation is an external collaborator. Static provides
// an in-memory stand-in for tests and schema-only dry runs, grounded
// on the teacher's storage.StorageProvider adapter-over-interface
// pattern.
package metadata

import (
	"context"
	"fmt"

	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// FieldMeta is one field's target-environment metadata, as returned by
// GetFieldMetadata.
type FieldMeta struct {
	Name          string
	Type          schema.FieldType
	LookupEntity  string
	IsCreateValid bool
	IsUpdateValid bool
	RequiredLevel RequiredLevel
}

// RequiredLevel mirrors the backend's required-level taxonomy.
type RequiredLevel string

const (
	RequiredNone        RequiredLevel = "none"
	RequiredRecommended RequiredLevel = "recommended"
	RequiredApplication RequiredLevel = "applicationrequired"
	RequiredSystem      RequiredLevel = "systemrequired"
)

// Required reports whether the field must be populated on create.
func (l RequiredLevel) Required() bool {
	return l == RequiredApplication || l == RequiredSystem
}

// OptionSetValue is one (label, value) pair of a picklist/optionset.
type OptionSetValue struct {
	Label string
	Value int
}

// UnavailableError reports §6/§7's MetadataUnavailable condition.
type UnavailableError struct {
	Entity string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("metadata: %s: unavailable: %v", e.Entity, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Service is the narrow contract C10 consumes; the exporter (C7) does
// not use it. All operations are suspending and fail with
// *UnavailableError on any backend problem.
type Service interface {
	GetFieldMetadata(ctx context.Context, entity string) ([]FieldMeta, error)
	GetOptionSetValues(ctx context.Context, entity, field string) ([]OptionSetValue, error)
	GetM2MRelationships(ctx context.Context, entity string) ([]schema.RelationshipDescriptor, error)
	GetAlternateKeys(ctx context.Context, entity string) ([]string, error)
}

// Static is an in-memory Service backed directly by a schema.Schema,
// for tests and for CLI dry-runs with no live target environment. Each
// field's create/update validity is copied from the schema's field
// descriptor, and every field is reported RequiredNone.
type Static struct {
	Schema *schema.Schema
}

var _ Service = (*Static)(nil)

func (s *Static) GetFieldMetadata(_ context.Context, entity string) ([]FieldMeta, error) {
	e, ok := s.Schema.Entity(entity)
	if !ok {
		return nil, &UnavailableError{Entity: entity, Err: fmt.Errorf("entity not declared in schema")}
	}
	out := make([]FieldMeta, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, FieldMeta{
			Name:          f.Name,
			Type:          f.Type,
			LookupEntity:  f.LookupEntity,
			IsCreateValid: f.CreateValid,
			IsUpdateValid: f.UpdateValid,
			RequiredLevel: RequiredNone,
		})
	}
	return out, nil
}

func (s *Static) GetOptionSetValues(_ context.Context, entity, field string) ([]OptionSetValue, error) {
	if !s.Schema.HasEntity(entity) {
		return nil, &UnavailableError{Entity: entity, Err: fmt.Errorf("entity not declared in schema")}
	}
	return nil, nil
}

func (s *Static) GetM2MRelationships(_ context.Context, entity string) ([]schema.RelationshipDescriptor, error) {
	return s.Schema.RelationshipsFor(entity), nil
}

func (s *Static) GetAlternateKeys(_ context.Context, entity string) ([]string, error) {
	if !s.Schema.HasEntity(entity) {
		return nil, &UnavailableError{Entity: entity, Err: fmt.Errorf("entity not declared in schema")}
	}
	return nil, nil
}
