package archive

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

func testSchema() *schema.Schema {
	s := &schema.Schema{
		Entities: []schema.EntityDescriptor{
			{Name: "account", PrimaryID: "accountid", Fields: []schema.FieldDescriptor{
				{Name: "name", Type: schema.TypeString},
			}},
			{Name: "contact", PrimaryID: "contactid", Fields: []schema.FieldDescriptor{
				{Name: "fullname", Type: schema.TypeString},
				{Name: "parentaccountid", Type: schema.TypeReference, LookupEntity: "account"},
			}},
		},
		Relationships: []schema.RelationshipDescriptor{
			{Intersect: "account_contacts", Entity1: "account", Entity2: "contact"},
		},
	}
	return s
}

func TestWriterFinishThenReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.zip")

	w, err := NewWriter(path)
	require.NoError(t, err)
	s := testSchema()
	w.SetSchema(s)

	accountID := uuid.New()
	contactID := uuid.New()

	aw := w.EntityWriter("account")
	accountRecord := schema.NewRecord("account", accountID)
	accountRecord.Fields["name"] = value.String("Acme")
	require.NoError(t, aw.AppendRecords([]*schema.Record{accountRecord}))
	require.NoError(t, aw.AppendAssociations("account_contacts", [][2]uuid.UUID{{accountID, contactID}}))

	cw := w.EntityWriter("contact")
	contactRecord := schema.NewRecord("contact", contactID)
	contactRecord.Fields["fullname"] = value.String("Jane Doe")
	contactRecord.Fields["parentaccountid"] = value.Reference{Entity: "account", ID: accountID}
	require.NoError(t, cw.AppendRecords([]*schema.Record{contactRecord}))

	require.NoError(t, w.Finish())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	readSchema, err := r.Schema()
	require.NoError(t, err)
	require.Len(t, readSchema.Entities, 2)

	require.True(t, r.HasEntity("account"))
	require.True(t, r.HasEntity("contact"))
	require.False(t, r.HasEntity("lead"))
	require.ElementsMatch(t, []string{"account", "contact"}, r.Entities())

	accountRecords, err := r.EntityRecords("account")
	require.NoError(t, err)
	require.Len(t, accountRecords, 1)
	require.Equal(t, accountID, accountRecords[0].ID)
	name, err := accountRecords[0].Fields["name"].Coerce("name", value.TypeString)
	require.NoError(t, err)
	require.Equal(t, value.String("Acme"), name)

	contactRecords, err := r.EntityRecords("contact")
	require.NoError(t, err)
	require.Len(t, contactRecords, 1)
	parentField := contactRecords[0].Fields["parentaccountid"]
	require.Equal(t, "account", parentField.LookupEntity)
	parent, err := parentField.Coerce("parentaccountid", value.TypeReference)
	require.NoError(t, err)
	require.Equal(t, value.Reference{Entity: "account", ID: accountID}, parent)

	assocs, err := r.EntityAssociations("account")
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	require.Equal(t, "account_contacts", assocs[0].Relationship)
	require.Equal(t, [2]uuid.UUID{accountID, contactID}, assocs[0].Pairs[0])
}

func TestReaderHandlesNullField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.zip")
	w, err := NewWriter(path)
	require.NoError(t, err)
	w.SetSchema(testSchema())

	aw := w.EntityWriter("account")
	rec := schema.NewRecord("account", uuid.New())
	rec.Fields["name"] = value.Null{}
	require.NoError(t, aw.AppendRecords([]*schema.Record{rec}))
	require.NoError(t, w.Finish())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.EntityRecords("account")
	require.NoError(t, err)
	require.True(t, records[0].Fields["name"].IsNull)
}

func TestReaderEntitiesEmptyBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")
	w, err := NewWriter(path)
	require.NoError(t, err)
	w.SetSchema(testSchema())
	require.NoError(t, w.Finish())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	require.Empty(t, r.Entities())
}
