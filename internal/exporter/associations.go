package exporter

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

var zeroUUID uuid.UUID

// associationsFromPage extracts the (id1, id2) key pairs from a page
// of intersect-entity records, per rel's declared key fields.
func associationsFromPage(page pool.Page, rel schema.RelationshipDescriptor) ([][2]uuid.UUID, error) {
	records := page.Records
	pairs := make([][2]uuid.UUID, 0, len(records))
	for _, r := range records {
		id1, err := referenceID(r, rel.Key1)
		if err != nil {
			return nil, fmt.Errorf("intersect %s record %s: %w", rel.Intersect, r.ID, err)
		}
		id2, err := referenceID(r, rel.Key2)
		if err != nil {
			return nil, fmt.Errorf("intersect %s record %s: %w", rel.Intersect, r.ID, err)
		}
		pairs = append(pairs, [2]uuid.UUID{id1, id2})
	}
	return pairs, nil
}

func referenceID(r *schema.Record, field string) (uuid.UUID, error) {
	v, ok := r.Fields[field]
	if !ok {
		return zeroUUID, fmt.Errorf("missing key field %q", field)
	}
	ref, ok := v.(value.Reference)
	if !ok {
		return zeroUUID, fmt.Errorf("key field %q is not a reference", field)
	}
	return ref.ID, nil
}
