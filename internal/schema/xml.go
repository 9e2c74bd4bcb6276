package schema

import (
	"encoding/xml"
	"fmt"
	"io"
)

// xmlDocument mirrors the wire format of data_schema.xml (§6): a root
// <entities> element with per-entity <fields> children and an optional
// sibling <relationships> section. Both the generator's canonical form
// and the legacy interchange form use this same element shape; legacy
// documents differ only in which type tags appear (handled by
// resolveType, not by this struct).
type xmlDocument struct {
	XMLName       xml.Name          `xml:"entities"`
	Entities      []xmlEntity       `xml:"entity"`
	Relationships *xmlRelationships `xml:"relationships"`
}

type xmlEntity struct {
	Name      string    `xml:"name,attr"`
	PrimaryID string    `xml:"primaryid,attr"`
	Fields    xmlFields `xml:"fields"`
}

type xmlFields struct {
	Field []xmlField `xml:"field"`
}

type xmlField struct {
	Name         string `xml:"name,attr"`
	Type         string `xml:"type,attr"`
	LookupEntity string `xml:"lookupentity,attr"`
	CreateValid  *bool  `xml:"createvalid,attr"`
	UpdateValid  *bool  `xml:"updatevalid,attr"`
}

type xmlRelationships struct {
	Relationship []xmlRelationship `xml:"relationship"`
}

type xmlRelationship struct {
	Intersect string `xml:"intersect,attr"`
	Entity1   string `xml:"entity1,attr"`
	Entity2   string `xml:"entity2,attr"`
	Key1      string `xml:"key1,attr"`
	Key2      string `xml:"key2,attr"`
}

// Read parses a data_schema.xml document (either canonical or legacy
// interchange form) into a Schema. Per §4.1, empty entity or field
// names are rejected with SchemaInvalid; the <relationships> section,
// if present, is preserved verbatim for later re-emission on export.
func Read(r io.Reader) (*Schema, error) {
	var doc xmlDocument
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}

	s := &Schema{}
	for _, xe := range doc.Entities {
		if xe.Name == "" {
			return nil, &InvalidError{Reason: "empty entity name"}
		}
		ed := EntityDescriptor{Name: xe.Name, PrimaryID: xe.PrimaryID}
		if ed.PrimaryID == "" {
			ed.PrimaryID = xe.Name + "id"
		}
		for _, xf := range xe.Fields.Field {
			if xf.Name == "" {
				return nil, &InvalidError{Reason: fmt.Sprintf("empty field name on entity %q", xe.Name)}
			}
			fd := FieldDescriptor{
				Name:         xf.Name,
				Type:         resolveType(xf.Type, xf.LookupEntity),
				LookupEntity: xf.LookupEntity,
				CreateValid:  boolOr(xf.CreateValid, true),
				UpdateValid:  boolOr(xf.UpdateValid, true),
			}
			ed.Fields = append(ed.Fields, fd)
		}
		s.Entities = append(s.Entities, ed)
	}
	if doc.Relationships != nil {
		for _, xr := range doc.Relationships.Relationship {
			s.Relationships = append(s.Relationships, RelationshipDescriptor{
				Intersect: xr.Intersect,
				Entity1:   xr.Entity1,
				Entity2:   xr.Entity2,
				Key1:      xr.Key1,
				Key2:      xr.Key2,
			})
		}
	}
	s.index()
	return s, nil
}

// Write serializes the schema back to the data_schema.xml wire format,
// including any <relationships> section, so an ExportBundle carries a
// faithful copy of the input schema (§3).
func Write(w io.Writer, s *Schema) error {
	doc := xmlDocument{}
	for _, e := range s.Entities {
		xe := xmlEntity{Name: e.Name, PrimaryID: e.PrimaryID}
		for _, f := range e.Fields {
			cv, uv := f.CreateValid, f.UpdateValid
			xe.Fields.Field = append(xe.Fields.Field, xmlField{
				Name:         f.Name,
				Type:         string(f.Type),
				LookupEntity: f.LookupEntity,
				CreateValid:  &cv,
				UpdateValid:  &uv,
			})
		}
		doc.Entities = append(doc.Entities, xe)
	}
	if len(s.Relationships) > 0 {
		rs := &xmlRelationships{}
		for _, r := range s.Relationships {
			rs.Relationship = append(rs.Relationship, xmlRelationship{
				Intersect: r.Intersect,
				Entity1:   r.Entity1,
				Entity2:   r.Entity2,
				Key1:      r.Key1,
				Key2:      r.Key2,
			})
		}
		doc.Relationships = rs
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("schema: encode: %w", err)
	}
	return nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
