package xrmclient

import (
	"context"
	"fmt"

	"github.com/dataplane-tools/xrm-migrate/internal/metadata"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

var _ metadata.Service = (*Client)(nil)

type fieldMetaWire struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	LookupEntity  string `json:"lookupEntity,omitempty"`
	IsCreateValid bool   `json:"isCreateValid"`
	IsUpdateValid bool   `json:"isUpdateValid"`
	RequiredLevel string `json:"requiredLevel"`
}

// GetFieldMetadata retrieves the target environment's authoritative
// field list for entity, used by §4.6 phase 1 (SchemaValidate) to
// classify bundle fields as create/update-valid, unknown, or missing.
func (c *Client) GetFieldMetadata(ctx context.Context, entity string) ([]metadata.FieldMeta, error) {
	var wire []fieldMetaWire
	path := fmt.Sprintf("/api/metadata/%s/fields", entity)
	if err := c.do(ctx, "GET", path, nil, &wire); err != nil {
		return nil, &metadata.UnavailableError{Entity: entity, Err: err}
	}
	out := make([]metadata.FieldMeta, 0, len(wire))
	for _, f := range wire {
		out = append(out, metadata.FieldMeta{
			Name:          f.Name,
			Type:          schema.FieldType(f.Type),
			LookupEntity:  f.LookupEntity,
			IsCreateValid: f.IsCreateValid,
			IsUpdateValid: f.IsUpdateValid,
			RequiredLevel: metadata.RequiredLevel(f.RequiredLevel),
		})
	}
	return out, nil
}

type optionSetValueWire struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// GetOptionSetValues retrieves the label/value pairs of one picklist
// field.
func (c *Client) GetOptionSetValues(ctx context.Context, entity, field string) ([]metadata.OptionSetValue, error) {
	var wire []optionSetValueWire
	path := fmt.Sprintf("/api/metadata/%s/optionsets/%s", entity, field)
	if err := c.do(ctx, "GET", path, nil, &wire); err != nil {
		return nil, &metadata.UnavailableError{Entity: entity, Err: err}
	}
	out := make([]metadata.OptionSetValue, 0, len(wire))
	for _, v := range wire {
		out = append(out, metadata.OptionSetValue{Label: v.Label, Value: v.Value})
	}
	return out, nil
}

type relationshipWire struct {
	Intersect string `json:"intersect"`
	Entity1   string `json:"entity1"`
	Entity2   string `json:"entity2"`
	Key1      string `json:"key1"`
	Key2      string `json:"key2"`
}

// GetM2MRelationships retrieves the M:N relationships entity
// participates in.
func (c *Client) GetM2MRelationships(ctx context.Context, entity string) ([]schema.RelationshipDescriptor, error) {
	var wire []relationshipWire
	path := fmt.Sprintf("/api/metadata/%s/relationships", entity)
	if err := c.do(ctx, "GET", path, nil, &wire); err != nil {
		return nil, &metadata.UnavailableError{Entity: entity, Err: err}
	}
	out := make([]schema.RelationshipDescriptor, 0, len(wire))
	for _, r := range wire {
		out = append(out, schema.RelationshipDescriptor{
			Intersect: r.Intersect,
			Entity1:   r.Entity1,
			Entity2:   r.Entity2,
			Key1:      r.Key1,
			Key2:      r.Key2,
		})
	}
	return out, nil
}

// GetAlternateKeys retrieves the alternate-key field name sets declared
// on entity.
func (c *Client) GetAlternateKeys(ctx context.Context, entity string) ([]string, error) {
	var wire []string
	path := fmt.Sprintf("/api/metadata/%s/alternatekeys", entity)
	if err := c.do(ctx, "GET", path, nil, &wire); err != nil {
		return nil, &metadata.UnavailableError{Entity: entity, Err: err}
	}
	return wire, nil
}
