package archive

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

// Reader opens an ExportBundle for lazy, on-demand reading: individual
// entity entries are decoded only when EntityRecords is called, so a
// caller never has to hold the whole archive in memory.
type Reader struct {
	zr *zip.ReadCloser
}

// Open opens the ExportBundle at path.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	return &Reader{zr: zr}, nil
}

// Close releases the underlying zip file.
func (r *Reader) Close() error { return r.zr.Close() }

// Schema reads and parses data_schema.xml.
func (r *Reader) Schema() (*schema.Schema, error) {
	f, err := r.open("data_schema.xml")
	if err != nil {
		return nil, fmt.Errorf("archive: data_schema.xml: %w", err)
	}
	defer f.Close()
	return schema.Read(f)
}

// HasEntity reports whether {entity}/data.xml exists in the archive.
// Per §4.2, a schema entity absent from the archive must be tolerated
// (skip with warning) rather than treated as an error.
func (r *Reader) HasEntity(entity string) bool {
	_, err := r.findEntry(entity + "/data.xml")
	return err == nil
}

// Entities lists the entity directories present in the archive,
// independent of what the schema declares — used to detect entities
// present in the bundle but absent from the schema (§4.6 Plan phase,
// SchemaMismatch on read).
func (r *Reader) Entities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range r.zr.File {
		parts := strings.SplitN(f.Name, "/", 2)
		if len(parts) == 2 && parts[1] == "data.xml" && !seen[parts[0]] {
			seen[parts[0]] = true
			out = append(out, parts[0])
		}
	}
	return out
}

// RawRecord is a minimally-parsed record: its id and the raw textual
// field values, not yet coerced through the Value codec (coercion
// requires the target field's declared type, which the caller
// supplies from schema/metadata).
type RawRecord struct {
	ID     uuid.UUID
	Fields map[string]RawField
}

// RawField is one <field> element, not yet coerced to a typed Value.
type RawField struct {
	Text         string
	LookupEntity string
	IsNull       bool
	Parties      []RawParty // populated only for partylist fields
}

// RawParty is one <activityparty> entry within a partylist field.
type RawParty struct {
	Entity string
	ID     string
}

// Associations is one relationship's id1/id2 pairs.
type Associations struct {
	Relationship string
	Pairs        [][2]uuid.UUID
}

func attr(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// EntityRecords decodes every <record> in {entity}/data.xml using a
// streaming token decoder (encoding/xml.Decoder.Token), so a
// multi-gigabyte entity file never needs to be held in memory as a DOM.
func (r *Reader) EntityRecords(entity string) ([]RawRecord, error) {
	f, err := r.open(entity + "/data.xml")
	if err != nil {
		return nil, fmt.Errorf("archive: %s/data.xml: %w", entity, err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var records []RawRecord
	var cur *RawRecord
	var fieldName, lookupEntity string
	var isNull bool
	var inField, inParty bool
	var partyEntity string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", entity, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "record":
				idStr, _ := attr(t, "id")
				id, err := uuid.Parse(idStr)
				if err != nil {
					return nil, fmt.Errorf("archive: %s: malformed record id %q: %w", entity, idStr, err)
				}
				cur = &RawRecord{ID: id, Fields: make(map[string]RawField)}
			case "field":
				fieldName, _ = attr(t, "name")
				lookupEntity, _ = attr(t, "lookupentity")
				nullAttr, _ := attr(t, "isNull")
				isNull = nullAttr == "true"
				inField = true
				text.Reset()
			case "activityparty":
				partyEntity, _ = attr(t, "lookupentity")
				inParty = true
				text.Reset()
			}
		case xml.CharData:
			if inField || inParty {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "record":
				if cur != nil {
					records = append(records, *cur)
					cur = nil
				}
			case "field":
				if cur != nil {
					cur.Fields[fieldName] = RawField{
						Text:         text.String(),
						LookupEntity: lookupEntity,
						IsNull:       isNull,
					}
				}
				inField = false
			case "activityparty":
				if cur != nil && fieldName != "" {
					rf := cur.Fields[fieldName]
					rf.Parties = append(rf.Parties, RawParty{Entity: partyEntity, ID: strings.TrimSpace(text.String())})
					cur.Fields[fieldName] = rf
				}
				inParty = false
			}
		}
	}
	return records, nil
}

// EntityAssociations decodes the <m2mrelationships> section of
// {entity}/data.xml, grouped by relationship name.
func (r *Reader) EntityAssociations(entity string) ([]Associations, error) {
	f, err := r.open(entity + "/data.xml")
	if err != nil {
		return nil, fmt.Errorf("archive: %s/data.xml: %w", entity, err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	byName := make(map[string]*Associations)
	var order []string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", entity, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "association" {
			continue
		}
		rel, _ := attr(start, "relationship")
		id1Str, _ := attr(start, "id1")
		id2Str, _ := attr(start, "id2")
		id1, err1 := uuid.Parse(id1Str)
		id2, err2 := uuid.Parse(id2Str)
		if err1 != nil || err2 != nil {
			continue
		}
		a, ok := byName[rel]
		if !ok {
			a = &Associations{Relationship: rel}
			byName[rel] = a
			order = append(order, rel)
		}
		a.Pairs = append(a.Pairs, [2]uuid.UUID{id1, id2})
	}
	out := make([]Associations, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

// Coerce converts a RawField into a typed value.Value given the
// field's declared type.
func (f RawField) Coerce(name string, fieldType value.FieldType) (value.Value, error) {
	if fieldType == value.TypePartyList {
		out := make(value.PartyList, 0, len(f.Parties))
		for _, p := range f.Parties {
			id, err := uuid.Parse(p.ID)
			if err != nil {
				return nil, fmt.Errorf("value: field %q: invalid activityparty guid %q: %w", name, p.ID, err)
			}
			out = append(out, value.Reference{Entity: p.Entity, ID: id})
		}
		return out, nil
	}
	return value.Decode(name, fieldType, f.Text, f.LookupEntity, f.IsNull)
}

func (r *Reader) findEntry(name string) (*zip.File, error) {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("entry not found: %s", name)
}

func (r *Reader) open(name string) (io.ReadCloser, error) {
	f, err := r.findEntry(name)
	if err != nil {
		return nil, err
	}
	return f.Open()
}
