// Package archive implements the ExportBundle codec (C2, §4.2, §6): a
// ZIP file containing data_schema.xml at the root and one
// {entity}/data.xml per exported entity. Entries are written in
// deterministic order (schema first, then entities sorted by logical
// name) and the read path opens entries lazily so a caller can stream
// a multi-gigabyte bundle without holding it all in memory at once.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

// Writer assembles an ExportBundle. Entity payloads are buffered in
// memory per entity (guarded by a per-entity mutex so concurrent
// pages of the same entity can append safely) and flushed into the
// underlying zip.Writer — which, per the format, only ever accepts one
// open entry at a time — when Finish is called. This is the "exclusive
// per entity directory" resource described in §5.
type Writer struct {
	f  *os.File
	zw *zip.Writer

	mu       sync.Mutex // guards the entities map
	schema   *schema.Schema
	entities map[string]*EntityWriter
}

// NewWriter creates a new, empty ExportBundle at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", path, err)
	}
	return &Writer{
		f:        f,
		zw:       zip.NewWriter(f),
		entities: make(map[string]*EntityWriter),
	}, nil
}

// SetSchema records the schema to be written as data_schema.xml. It
// must be called before Finish.
func (w *Writer) SetSchema(s *schema.Schema) {
	w.schema = s
}

// EntityWriter returns the (lazily created) per-entity buffer for
// entity, creating it on first use.
func (w *Writer) EntityWriter(entity string) *EntityWriter {
	w.mu.Lock()
	defer w.mu.Unlock()
	ew, ok := w.entities[entity]
	if !ok {
		ew = &EntityWriter{entity: entity}
		w.entities[entity] = ew
	}
	return ew
}

// Finish writes data_schema.xml followed by each buffered entity's
// data.xml, entities sorted by logical name ascending, then closes the
// archive. No further writes may occur after Finish returns.
func (w *Writer) Finish() error {
	defer w.f.Close()

	if w.schema != nil {
		sw, err := w.zw.Create("data_schema.xml")
		if err != nil {
			return fmt.Errorf("archive: create data_schema.xml: %w", err)
		}
		if err := schema.Write(sw, w.schema); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(w.entities))
	for name := range w.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ew := w.entities[name]
		entry := fmt.Sprintf("%s/data.xml", name)
		ewr, err := w.zw.Create(entry)
		if err != nil {
			return fmt.Errorf("archive: create %s: %w", entry, err)
		}
		if err := ew.flush(ewr); err != nil {
			return fmt.Errorf("archive: flush %s: %w", entry, err)
		}
	}

	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("archive: close: %w", err)
	}
	return nil
}

// EntityWriter accumulates one entity's records and M:N associations
// before they are flushed into the archive's zip entry.
type EntityWriter struct {
	entity string

	mu          sync.Mutex
	records     bytes.Buffer
	m2m         bytes.Buffer
	recordCount int
}

// AppendRecords appends a page of records to the entity's buffer.
// Safe to call concurrently from multiple pages of the same entity.
func (ew *EntityWriter) AppendRecords(records []*schema.Record) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	for _, r := range records {
		if err := writeRecordXML(&ew.records, r); err != nil {
			return err
		}
		ew.recordCount++
	}
	return nil
}

// AppendAssociations appends a page of M:N intersect-table pairs for
// the named relationship.
func (ew *EntityWriter) AppendAssociations(relationship string, pairs [][2]uuid.UUID) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	for _, p := range pairs {
		fmt.Fprintf(&ew.m2m, "<association relationship=%s id1=%q id2=%q/>\n", attrQuote(relationship), p[0].String(), p[1].String())
	}
	return nil
}

func (ew *EntityWriter) flush(w io.Writer) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	fmt.Fprintf(w, "<entities>\n<entity name=%s>\n<records>\n", attrQuote(ew.entity))
	if _, err := w.Write(ew.records.Bytes()); err != nil {
		return err
	}
	fmt.Fprint(w, "</records>\n")
	if ew.m2m.Len() > 0 {
		fmt.Fprint(w, "<m2mrelationships>\n")
		if _, err := w.Write(ew.m2m.Bytes()); err != nil {
			return err
		}
		fmt.Fprint(w, "</m2mrelationships>\n")
	}
	fmt.Fprint(w, "</entity>\n</entities>\n")
	return nil
}

func writeRecordXML(buf *bytes.Buffer, r *schema.Record) error {
	fmt.Fprintf(buf, "<record id=%q>\n", r.ID.String())
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := r.Fields[name]
		if pl, ok := v.(value.PartyList); ok {
			fmt.Fprintf(buf, "<field name=%s>\n", attrQuote(name))
			for _, ref := range pl {
				fmt.Fprintf(buf, "<activityparty lookupentity=%s>%s</activityparty>\n", attrQuote(ref.Entity), ref.ID.String())
			}
			fmt.Fprint(buf, "</field>\n")
			continue
		}
		enc, err := value.Encode(v)
		if err != nil {
			return fmt.Errorf("record %s field %s: %w", r.ID, name, err)
		}
		if enc.IsNull {
			fmt.Fprintf(buf, "<field name=%s isNull=\"true\"></field>\n", attrQuote(name))
			continue
		}
		if enc.LookupEntity != "" {
			fmt.Fprintf(buf, "<field name=%s lookupentity=%s>", attrQuote(name), attrQuote(enc.LookupEntity))
		} else {
			fmt.Fprintf(buf, "<field name=%s>", attrQuote(name))
		}
		if err := xml.EscapeText(buf, []byte(enc.Text)); err != nil {
			return fmt.Errorf("record %s field %s: escape: %w", r.ID, name, err)
		}
		fmt.Fprint(buf, "</field>\n")
	}
	fmt.Fprint(buf, "</record>\n")
	return nil
}

// attrQuote renders s as a double-quoted, XML-escaped attribute value.
func attrQuote(s string) string {
	var b bytes.Buffer
	b.WriteByte('"')
	_ = xml.EscapeText(&b, []byte(s))
	b.WriteByte('"')
	return b.String()
}
