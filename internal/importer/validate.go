package importer

import (
	"context"

	"github.com/dataplane-tools/xrm-migrate/internal/metadata"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// validEntity is the outcome of SchemaValidate (§4.6 phase 1) for one
// entity: which bundle fields the target actually accepts, which were
// stripped as unknown to the target, and whether the entity must be
// skipped entirely because the target requires a field the bundle
// never supplies.
type validEntity struct {
	writableFields map[string]bool // bundle field names the target accepts for create/update
	stripped       []string
	aborted        bool
}

// validateSchema loads target metadata for every schema entity present
// in the bundle, classifying each declared field as known/unknown to
// the target and checking the target's required fields are all
// present in the source schema. Entities whose metadata is
// unavailable, or which are missing a target-required field, are
// marked aborted — SchemaValidate isolates the failure to that one
// entity rather than the whole run (§7 propagation policy).
func validateSchema(ctx context.Context, s *schema.Schema, bundleEntities []string, md metadata.Service, errs *report.Builder) map[string]*validEntity {
	present := make(map[string]bool, len(bundleEntities))
	for _, e := range bundleEntities {
		present[e] = true
	}

	out := make(map[string]*validEntity, len(s.Entities))
	for _, e := range s.Entities {
		if !present[e.Name] {
			continue // tolerated: schema entity absent from the archive (§4.2)
		}

		fields, err := md.GetFieldMetadata(ctx, e.Name)
		if err != nil {
			errs.Failed(e.Name, zeroRecordID, "", report.CategoryMetadataUnavailable, err)
			out[e.Name] = &validEntity{aborted: true}
			continue
		}

		targetByName := make(map[string]metadata.FieldMeta, len(fields))
		for _, f := range fields {
			targetByName[f.Name] = f
		}

		ve := &validEntity{writableFields: make(map[string]bool)}
		sourceHas := make(map[string]bool, len(e.Fields))
		for _, f := range e.Fields {
			sourceHas[f.Name] = true
			tf, ok := targetByName[f.Name]
			if !ok {
				ve.stripped = append(ve.stripped, f.Name)
				errs.Warning(e.Name, zeroRecordID, f.Name, report.CategorySchemaMismatch, errFieldUnknownToTarget(f.Name))
				continue
			}
			if !tf.IsCreateValid && !tf.IsUpdateValid {
				ve.stripped = append(ve.stripped, f.Name)
				errs.Warning(e.Name, zeroRecordID, f.Name, report.CategorySchemaMismatch, errFieldNotWritable(f.Name))
				continue
			}
			ve.writableFields[f.Name] = true
		}

		for _, tf := range fields {
			if tf.RequiredLevel.Required() && !sourceHas[tf.Name] {
				errs.Failed(e.Name, zeroRecordID, tf.Name, report.CategorySchemaMismatch, errRequiredFieldMissing(tf.Name))
				ve.aborted = true
				break
			}
		}

		out[e.Name] = ve
	}
	return out
}
