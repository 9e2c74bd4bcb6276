package importer

import (
	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

// writeEntity drives one entity's write wave within a tier (§4.6.3.a):
// loads the entity's records from the bundle, elides deferred and
// as-yet-unmapped-in-tier references, remaps the rest through the
// IdMap, and writes the result through writeBatches. An entity whose
// SchemaValidate phase aborted it is skipped entirely, its records
// counted as skipped rather than written.
func (s *session) writeEntity(entityName string, tierMembers map[string]bool, deferredFieldSet map[[2]string]bool) {
	ve, known := s.valid[entityName]
	if known && ve.aborted {
		if raws, err := s.bundle.EntityRecords(entityName); err == nil {
			for range raws {
				s.errs.Skipped(entityName)
			}
		}
		return
	}
	if !s.bundle.HasEntity(entityName) {
		return
	}

	ent, hasSchema := s.schema.Entity(entityName)
	if !hasSchema {
		// Bundle entity absent from the schema entirely (§4.2/§4.6
		// Plan phase): SchemaMismatch on read, best-effort import.
		s.errs.Failed(entityName, zeroRecordID, "", report.CategorySchemaMismatch, errNoSchemaForEntity(entityName))
	}

	raws, err := s.bundle.EntityRecords(entityName)
	if err != nil {
		s.errs.Failed(entityName, zeroRecordID, "", report.CategoryUnknown, err)
		return
	}

	records := make([]*schema.Record, 0, len(raws))
	for _, raw := range raws {
		rec, ok := s.buildRecord(entityName, ent, hasSchema, ve, raw, tierMembers, deferredFieldSet)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return
	}
	s.writeBatches(entityName, records, false, true)
}

// buildRecord coerces one raw archive record into a schema.Record
// ready for write. Fields the target doesn't accept are dropped
// (already recorded once at the entity level by validateSchema).
// Reference fields are remapped through the IdMap where possible;
// statically-deferred fields and forward references within the same
// tier whose target is not yet mapped are elided and queued for the
// post-tier deferred pass (§4.6.3.a). A reference to an id never
// present in the source export fails the whole record as
// ReferenceUnmapped, since the record would be left permanently
// dangling.
func (s *session) buildRecord(entityName string, ent *schema.EntityDescriptor, hasSchema bool, ve *validEntity, raw archive.RawRecord, tierMembers map[string]bool, deferredFieldSet map[[2]string]bool) (*schema.Record, bool) {
	rec := schema.NewRecord(entityName, raw.ID)

	for name, rf := range raw.Fields {
		if ve != nil && !ve.writableFields[name] {
			continue // stripped: unknown to the target, already reported once
		}

		var fd schema.FieldDescriptor
		var fdOK bool
		if hasSchema && ent != nil {
			fd, fdOK = ent.Field(name)
		}
		fieldType := fieldTypeFor(fd, fdOK, rf.LookupEntity != "")

		if len(rf.Parties) > 0 || fieldType == value.TypePartyList {
			pl, err := rf.Coerce(name, value.TypePartyList)
			if err != nil {
				s.errs.Failed(entityName, raw.ID, name, report.CategoryUnknown, err)
				return nil, false
			}
			remapped, ok := s.remapPartyList(pl.(value.PartyList), tierMembers)
			if !ok {
				s.errs.Failed(entityName, raw.ID, name, report.CategoryReferenceUnmapped, errReferenceUnmapped(name, "partylist"))
				return nil, false
			}
			rec.Fields[name] = remapped
			continue
		}

		// §4.1: an explicit lookupentity attribute always forces
		// reference semantics; absent that, the schema field's own
		// lookupentity hint (if any) still identifies a reference
		// whose archive entry simply omitted the attribute (§4.3:
		// ambiguous only when neither source agrees on a target).
		targetEntity := rf.LookupEntity
		if targetEntity == "" && fdOK {
			targetEntity = fd.LookupEntity
		}
		isReference := fieldType == value.TypeReference || targetEntity != ""

		if isReference && s.isOwnerField(entityName, name) {
			if rf.IsNull || rf.Text == "" {
				rec.Fields[name] = value.Null{}
				continue
			}
			rec.Fields[name] = s.remapOwner(targetEntity, rf.Text)
			continue
		}

		if !isReference {
			if rf.IsNull {
				rec.Fields[name] = value.Null{}
				continue
			}
			v, err := value.Decode(name, fieldType, rf.Text, "", false)
			if err != nil {
				s.errs.Failed(entityName, raw.ID, name, report.CategoryUnknown, err)
				return nil, false
			}
			rec.Fields[name] = v
			continue
		}

		if rf.IsNull || rf.Text == "" {
			rec.Fields[name] = value.Null{}
			continue
		}
		if targetEntity == "" {
			s.errs.Failed(entityName, raw.ID, name, report.CategoryUnknown, errAmbiguousReference(name))
			return nil, false
		}

		oldID, err := uuid.Parse(rf.Text)
		if err != nil {
			s.errs.Failed(entityName, raw.ID, name, report.CategoryUnknown, err)
			return nil, false
		}

		if deferredFieldSet[[2]string{entityName, name}] {
			s.addDeferred(pendingDeferred{entity: entityName, recordID: raw.ID, field: name, targetEntity: targetEntity, targetOldID: oldID})
			continue
		}

		if newID, ok := s.idmap.Get(targetEntity, oldID); ok {
			rec.Fields[name] = value.Reference{Entity: targetEntity, ID: newID}
			continue
		}

		if tierMembers[targetEntity] {
			// Forward edge within the same tier, not statically
			// flagged deferred by depgraph: elide and patch later.
			s.addDeferred(pendingDeferred{entity: entityName, recordID: raw.ID, field: name, targetEntity: targetEntity, targetOldID: oldID})
			continue
		}

		s.errs.Failed(entityName, raw.ID, name, report.CategoryReferenceUnmapped, errReferenceUnmapped(name, targetEntity))
		return nil, false
	}

	return rec, true
}

// remapOwner resolves an owning-user reference through
// Options.UserMap (§6 user-mapping contract), falling back to
// OwnerFallback when the source user has no mapping entry, or leaving
// the source id in place when OwnerFallback is also unset. A
// malformed source id is treated as an unmapped owner rather than
// failing the record, since an owner field never blocks the rest of
// the record's integrity the way a structural reference does.
func (s *session) remapOwner(targetEntity, text string) value.Value {
	if targetEntity == "" {
		targetEntity = "systemuser"
	}
	oldID, err := uuid.Parse(text)
	if err != nil {
		return value.Null{}
	}
	if newID, ok := s.opts.UserMap[oldID]; ok {
		return value.Reference{Entity: targetEntity, ID: newID}
	}
	if s.opts.OwnerFallback != (uuid.UUID{}) {
		return value.Reference{Entity: targetEntity, ID: s.opts.OwnerFallback}
	}
	return value.Reference{Entity: targetEntity, ID: oldID}
}

// remapPartyList remaps every reference in a PartyList through the
// IdMap. A member that targets an in-tier entity not yet mapped is
// dropped from the list, and it is not patched in later. A member that
// targets any other unmapped entity makes the call return false.
func (s *session) remapPartyList(pl value.PartyList, tierMembers map[string]bool) (value.PartyList, bool) {
	out := make(value.PartyList, 0, len(pl))
	for _, ref := range pl {
		newID, ok := s.idmap.Get(ref.Entity, ref.ID)
		if !ok {
			if tierMembers[ref.Entity] {
				continue // best-effort: drop the unresolved member rather than fail the whole record
			}
			return nil, false
		}
		out = append(out, value.Reference{Entity: ref.Entity, ID: newID})
	}
	return out, true
}

// fieldTypeFor resolves the value codec type to decode a field's raw
// text as. When the source schema declares the field, its declared
// type is authoritative. Otherwise (a bundle entity absent from the
// schema entirely, or a field the schema never declared) the type is
// guessed the same way §4.1 resolves an undeclared field: reference if
// the archive carried a lookupentity attribute, string otherwise.
func fieldTypeFor(fd schema.FieldDescriptor, fdOK bool, hasLookupAttr bool) value.FieldType {
	if fdOK {
		return value.FieldType(fd.Type)
	}
	if hasLookupAttr {
		return value.TypeReference
	}
	return value.TypeString
}
