package importer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-tools/xrm-migrate/internal/archive"
	"github.com/dataplane-tools/xrm-migrate/internal/metadata"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

// fakeBackend is an in-memory target environment: identity-mapped ids,
// with per-entity bulk capability and duplicate-association detection,
// enough to exercise every branch of the tiered importer without a
// live CRM.
type fakeBackend struct {
	bulkUnsupported map[string]bool // entities whose UpsertMultiple/UpdateMultiple reject
	throttleFirst   int             // number of leading bulk calls to reject with ThrottledError
	authFail        bool            // every write rejected with AuthError

	store     map[string]map[uuid.UUID]*schema.Record
	assocs    map[string]map[[2]uuid.UUID]bool
	bulkSizes map[string][]int // per-entity record counts of each UpsertMultiple attempt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		bulkUnsupported: map[string]bool{},
		store:           map[string]map[uuid.UUID]*schema.Record{},
		assocs:          map[string]map[[2]uuid.UUID]bool{},
		bulkSizes:       map[string][]int{},
	}
}

func (b *fakeBackend) client() pool.Client { return &fakeClient{b: b} }

type fakeClient struct{ b *fakeBackend }

func (c *fakeClient) RetrieveMultiple(context.Context, string, int, string) (pool.Page, error) {
	return pool.Page{}, nil
}

func (c *fakeClient) Upsert(_ context.Context, r *schema.Record) (pool.UpsertResult, error) {
	if c.b.authFail {
		return pool.UpsertResult{}, &pool.AuthError{Status: 401, Msg: "unauthorized"}
	}
	b := c.b
	byID, ok := b.store[r.Entity]
	if !ok {
		byID = map[uuid.UUID]*schema.Record{}
		b.store[r.Entity] = byID
	}
	_, existed := byID[r.ID]
	byID[r.ID] = r
	return pool.UpsertResult{ID: r.ID, Created: !existed}, nil
}

func (c *fakeClient) UpsertMultiple(_ context.Context, entity string, records []*schema.Record) ([]pool.BulkResult, error) {
	if c.b.authFail {
		return nil, &pool.AuthError{Status: 401, Msg: "unauthorized"}
	}
	if c.b.throttleFirst > 0 {
		c.b.throttleFirst--
		return nil, &pool.ThrottledError{RetryAfter: "1"}
	}
	c.b.bulkSizes[entity] = append(c.b.bulkSizes[entity], len(records))
	if c.b.bulkUnsupported[entity] {
		return nil, &pool.NotSupportedError{Entity: entity, Op: "UpsertMultiple"}
	}
	out := make([]pool.BulkResult, 0, len(records))
	for _, r := range records {
		_, _ = c.Upsert(context.Background(), r)
		out = append(out, pool.BulkResult{ID: r.ID})
	}
	return out, nil
}

func (c *fakeClient) Update(_ context.Context, r *schema.Record) error {
	b := c.b
	byID, ok := b.store[r.Entity]
	if !ok {
		byID = map[uuid.UUID]*schema.Record{}
		b.store[r.Entity] = byID
	}
	existing, ok := byID[r.ID]
	if !ok {
		byID[r.ID] = r
		return nil
	}
	for k, v := range r.Fields {
		existing.Fields[k] = v
	}
	return nil
}

func (c *fakeClient) UpdateMultiple(_ context.Context, entity string, records []*schema.Record) ([]pool.BulkResult, error) {
	if c.b.bulkUnsupported[entity] {
		return nil, &pool.NotSupportedError{Entity: entity, Op: "UpdateMultiple"}
	}
	out := make([]pool.BulkResult, 0, len(records))
	for _, r := range records {
		_ = c.Update(context.Background(), r)
		out = append(out, pool.BulkResult{ID: r.ID})
	}
	return out, nil
}

func (c *fakeClient) Associate(_ context.Context, relationship, _ string, id1 uuid.UUID, _ string, id2 uuid.UUID) error {
	b := c.b
	pairs, ok := b.assocs[relationship]
	if !ok {
		pairs = map[[2]uuid.UUID]bool{}
		b.assocs[relationship] = pairs
	}
	key := [2]uuid.UUID{id1, id2}
	if pairs[key] {
		return errDuplicateKey(relationship)
	}
	pairs[key] = true
	return nil
}

func errDuplicateKey(relationship string) error {
	return &duplicateKeyError{relationship: relationship}
}

type duplicateKeyError struct{ relationship string }

func (e *duplicateKeyError) Error() string {
	return "cannot insert duplicate key for " + e.relationship
}

// onePool is a trivial unbounded pool.Pool wrapping a single Client,
// enough for tests that don't exercise real concurrency limits.
type onePool struct{ client pool.Client }

func (p *onePool) Acquire(context.Context) (pool.Client, func(), error) {
	return p.client, func() {}, nil
}

func buildBundle(t *testing.T, s *schema.Schema, records map[string][]*schema.Record) *archive.Reader {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.zip")
	w, err := archive.NewWriter(path)
	require.NoError(t, err)
	w.SetSchema(s)
	for entity, recs := range records {
		require.NoError(t, w.EntityWriter(entity).AppendRecords(recs))
	}
	require.NoError(t, w.Finish())
	r, err := archive.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func twoEntitySchema() *schema.Schema {
	s := &schema.Schema{
		Entities: []schema.EntityDescriptor{
			{Name: "account", PrimaryID: "accountid"},
			{Name: "contact", PrimaryID: "contactid", Fields: []schema.FieldDescriptor{
				{Name: "fullname", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
				{Name: "parentcustomerid", Type: schema.TypeReference, LookupEntity: "account", CreateValid: true, UpdateValid: true},
			}},
		},
	}
	return s
}

func TestImportTwoEntitiesNoCycle(t *testing.T) {
	s := twoEntitySchema()
	accID := uuid.New()
	contactID := uuid.New()

	accRec := schema.NewRecord("account", accID)
	contactRec := schema.NewRecord("contact", contactID)
	contactRec.Fields["fullname"] = value.String("Ada Lovelace")
	contactRec.Fields["parentcustomerid"] = value.Reference{Entity: "account", ID: accID}

	bundle := buildBundle(t, s, map[string][]*schema.Record{
		"account": {accRec},
		"contact": {contactRec},
	})

	backend := newFakeBackend()
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 2, res.Created)

	newAccID, ok := res.IDMap.Get("account", accID)
	require.True(t, ok)
	newContactID, ok := res.IDMap.Get("contact", contactID)
	require.True(t, ok)

	written := backend.store["contact"][newContactID]
	require.NotNil(t, written)
	ref, ok := written.Fields["parentcustomerid"].(value.Reference)
	require.True(t, ok)
	require.Equal(t, newAccID, ref.ID)
}

func selfRefSchema() *schema.Schema {
	return &schema.Schema{
		Entities: []schema.EntityDescriptor{
			{Name: "contact", PrimaryID: "contactid", Fields: []schema.FieldDescriptor{
				{Name: "fullname", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
				{Name: "parentcontactid", Type: schema.TypeReference, LookupEntity: "contact", CreateValid: true, UpdateValid: true},
			}},
		},
	}
}

func TestImportSelfReferenceDeferred(t *testing.T) {
	s := selfRefSchema()
	id1 := uuid.New()
	id2 := uuid.New()

	r1 := schema.NewRecord("contact", id1)
	r1.Fields["fullname"] = value.String("root")
	r1.Fields["parentcontactid"] = value.Null{}

	r2 := schema.NewRecord("contact", id2)
	r2.Fields["fullname"] = value.String("child")
	r2.Fields["parentcontactid"] = value.Reference{Entity: "contact", ID: id1}

	bundle := buildBundle(t, s, map[string][]*schema.Record{"contact": {r1, r2}})

	backend := newFakeBackend()
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)

	newID1, ok := res.IDMap.Get("contact", id1)
	require.True(t, ok)
	newID2, ok := res.IDMap.Get("contact", id2)
	require.True(t, ok)

	written := backend.store["contact"][newID2]
	require.NotNil(t, written)
	ref, ok := written.Fields["parentcontactid"].(value.Reference)
	require.True(t, ok)
	require.Equal(t, newID1, ref.ID)
}

// twoNodeCycleSchema mirrors the quote/order pair in
// internal/depgraph's TestBuildTwoNodeCycle: two distinct entities each
// holding a reference into the other, forcing the planner to group
// them into a single tier with deferred cross-reference fields.
func twoNodeCycleSchema() *schema.Schema {
	return &schema.Schema{
		Entities: []schema.EntityDescriptor{
			{Name: "quote", PrimaryID: "quoteid", Fields: []schema.FieldDescriptor{
				{Name: "name", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
				{Name: "orderid", Type: schema.TypeReference, LookupEntity: "order", CreateValid: true, UpdateValid: true},
			}},
			{Name: "order", PrimaryID: "orderid", Fields: []schema.FieldDescriptor{
				{Name: "name", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
				{Name: "quoteid", Type: schema.TypeReference, LookupEntity: "quote", CreateValid: true, UpdateValid: true},
			}},
		},
	}
}

func TestImportTwoNodeCycleDeferred(t *testing.T) {
	s := twoNodeCycleSchema()
	quoteID := uuid.New()
	orderID := uuid.New()

	quoteRec := schema.NewRecord("quote", quoteID)
	quoteRec.Fields["name"] = value.String("Q-1")
	quoteRec.Fields["orderid"] = value.Reference{Entity: "order", ID: orderID}

	orderRec := schema.NewRecord("order", orderID)
	orderRec.Fields["name"] = value.String("O-1")
	orderRec.Fields["quoteid"] = value.Reference{Entity: "quote", ID: quoteID}

	bundle := buildBundle(t, s, map[string][]*schema.Record{
		"quote": {quoteRec},
		"order": {orderRec},
	})

	backend := newFakeBackend()
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 2, res.Created)

	newQuoteID, ok := res.IDMap.Get("quote", quoteID)
	require.True(t, ok)
	newOrderID, ok := res.IDMap.Get("order", orderID)
	require.True(t, ok)

	writtenQuote := backend.store["quote"][newQuoteID]
	require.NotNil(t, writtenQuote)
	quoteRef, ok := writtenQuote.Fields["orderid"].(value.Reference)
	require.True(t, ok)
	require.Equal(t, newOrderID, quoteRef.ID)

	writtenOrder := backend.store["order"][newOrderID]
	require.NotNil(t, writtenOrder)
	orderRef, ok := writtenOrder.Fields["quoteid"].(value.Reference)
	require.True(t, ok)
	require.Equal(t, newQuoteID, orderRef.ID)
}

func TestImportBulkNotSupportedFallsBackToIndividualWrites(t *testing.T) {
	s := &schema.Schema{Entities: []schema.EntityDescriptor{
		{Name: "account", PrimaryID: "accountid", Fields: []schema.FieldDescriptor{
			{Name: "name", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
		}},
	}}
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var recs []*schema.Record
	for _, id := range ids {
		r := schema.NewRecord("account", id)
		r.Fields["name"] = value.String("acct")
		recs = append(recs, r)
	}
	bundle := buildBundle(t, s, map[string][]*schema.Record{"account": recs})

	backend := newFakeBackend()
	backend.bulkUnsupported["account"] = true
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 3, res.Created)
	require.Equal(t, 3, len(backend.store["account"]))
}

func manyAccountSchema() *schema.Schema {
	return &schema.Schema{Entities: []schema.EntityDescriptor{
		{Name: "account", PrimaryID: "accountid", Fields: []schema.FieldDescriptor{
			{Name: "name", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
		}},
	}}
}

func manyAccountRecords(n int) []*schema.Record {
	recs := make([]*schema.Record, 0, n)
	for i := 0; i < n; i++ {
		r := schema.NewRecord("account", uuid.New())
		r.Fields["name"] = value.String("acct")
		recs = append(recs, r)
	}
	return recs
}

func TestImportProbeSendsOneRecordBeforeCommittingBatch(t *testing.T) {
	s := manyAccountSchema()
	bundle := buildBundle(t, s, map[string][]*schema.Record{"account": manyAccountRecords(50)})

	backend := newFakeBackend()
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 50, res.Created)

	sizes := backend.bulkSizes["account"]
	require.Equal(t, []int{1, 49}, sizes)
}

func TestImportBulkNotSupportedNeverSendsOversizedBatch(t *testing.T) {
	s := manyAccountSchema()
	bundle := buildBundle(t, s, map[string][]*schema.Record{"account": manyAccountRecords(50)})

	backend := newFakeBackend()
	backend.bulkUnsupported["account"] = true
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 50, res.Created)
	require.Equal(t, 50, len(backend.store["account"]))

	// The probe is the only bulk attempt, and it carries exactly one
	// record: discovery of an unsupported entity never costs more than
	// a single-record batch.
	require.Equal(t, []int{1}, backend.bulkSizes["account"])
}

func TestImportThrottledBulkCallIsRetried(t *testing.T) {
	s := manyAccountSchema()
	bundle := buildBundle(t, s, map[string][]*schema.Record{"account": manyAccountRecords(3)})

	backend := newFakeBackend()
	backend.throttleFirst = 2
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 3, res.Created)
}

func TestImportThrottleRetryExhaustedFailsRecords(t *testing.T) {
	s := manyAccountSchema()
	bundle := buildBundle(t, s, map[string][]*schema.Record{"account": manyAccountRecords(1)})

	backend := newFakeBackend()
	backend.throttleFirst = 1 << 20 // effectively always throttled
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{MaxRetries: 2})
	require.NoError(t, err)
	require.Equal(t, 0, res.Created)
	require.Equal(t, 1, res.Failed)

	var sawThrottled bool
	for _, es := range res.Report.Entities {
		for _, e := range es.Errors {
			if e.Category == report.CategoryThrottledRetryExhausted {
				sawThrottled = true
				require.True(t, e.Retryable)
			}
		}
	}
	require.True(t, sawThrottled)
}

func TestImportAuthFailureAbortsSession(t *testing.T) {
	s := &schema.Schema{Entities: []schema.EntityDescriptor{
		{Name: "account", PrimaryID: "accountid", Fields: []schema.FieldDescriptor{
			{Name: "name", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
		}},
		{Name: "contact", PrimaryID: "contactid", Fields: []schema.FieldDescriptor{
			{Name: "fullname", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
		}},
	}}
	contactRec := schema.NewRecord("contact", uuid.New())
	contactRec.Fields["fullname"] = value.String("never written")
	bundle := buildBundle(t, s, map[string][]*schema.Record{
		"account": manyAccountRecords(3),
		"contact": {contactRec},
	})

	backend := newFakeBackend()
	backend.authFail = true
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.Error(t, err)
	var ae *pool.AuthError
	require.ErrorAs(t, err, &ae)

	// §7: the report is still written on a session-level abort.
	require.NotNil(t, res)
	require.NotNil(t, res.Report)

	// The two entities are independent singleton tiers; the auth
	// failure in the first must stop the second from ever starting.
	require.Empty(t, backend.store["contact"])

	var sawAuth bool
	for _, es := range res.Report.Entities {
		for _, e := range es.Errors {
			if e.Category == report.CategoryAuthFailure {
				sawAuth = true
			}
		}
	}
	require.True(t, sawAuth)
}

func TestImportSchemaMismatchStripsUnknownField(t *testing.T) {
	s := &schema.Schema{Entities: []schema.EntityDescriptor{
		{Name: "account", PrimaryID: "accountid", Fields: []schema.FieldDescriptor{
			{Name: "name", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
			{Name: "legacyfield", Type: schema.TypeString, CreateValid: true, UpdateValid: true},
		}},
	}}
	id := uuid.New()
	r := schema.NewRecord("account", id)
	r.Fields["name"] = value.String("acct")
	r.Fields["legacyfield"] = value.String("stale")

	bundle := buildBundle(t, s, map[string][]*schema.Record{"account": {r}})

	// metadata.Static derives field metadata straight from the schema, so
	// to exercise a real mismatch we need a target service that omits
	// legacyfield.
	md := &strippingMetadata{fields: []metadata.FieldMeta{
		{Name: "name", Type: schema.TypeString, IsCreateValid: true, IsUpdateValid: true},
	}}

	backend := newFakeBackend()
	p := &onePool{client: backend.client()}
	bus := report.NewBus()

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Equal(t, 0, res.Failed) // the strip is a warning, not a failed record

	newID, ok := res.IDMap.Get("account", id)
	require.True(t, ok)
	written := backend.store["account"][newID]
	require.NotNil(t, written)
	_, hasLegacy := written.Fields["legacyfield"]
	require.False(t, hasLegacy)

	var sawMismatch bool
	for _, es := range res.Report.Entities {
		for _, e := range es.Errors {
			if e.Category == report.CategorySchemaMismatch {
				sawMismatch = true
			}
		}
	}
	require.True(t, sawMismatch)
}

type strippingMetadata struct{ fields []metadata.FieldMeta }

func (m *strippingMetadata) GetFieldMetadata(context.Context, string) ([]metadata.FieldMeta, error) {
	return m.fields, nil
}
func (m *strippingMetadata) GetOptionSetValues(context.Context, string, string) ([]metadata.OptionSetValue, error) {
	return nil, nil
}
func (m *strippingMetadata) GetM2MRelationships(context.Context, string) ([]schema.RelationshipDescriptor, error) {
	return nil, nil
}
func (m *strippingMetadata) GetAlternateKeys(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestImportM2MAssociationIdempotent(t *testing.T) {
	s := &schema.Schema{
		Entities: []schema.EntityDescriptor{
			{Name: "account", PrimaryID: "accountid"},
			{Name: "contact", PrimaryID: "contactid"},
		},
		Relationships: []schema.RelationshipDescriptor{
			{Intersect: "accountcontact_assoc", Entity1: "account", Entity2: "contact"},
		},
	}
	accID := uuid.New()
	contactID := uuid.New()
	accRec := schema.NewRecord("account", accID)
	contactRec := schema.NewRecord("contact", contactID)

	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.zip")
	w, err := archive.NewWriter(path)
	require.NoError(t, err)
	w.SetSchema(s)
	require.NoError(t, w.EntityWriter("account").AppendRecords([]*schema.Record{accRec}))
	require.NoError(t, w.EntityWriter("contact").AppendRecords([]*schema.Record{contactRec}))
	require.NoError(t, w.EntityWriter("account").AppendAssociations("accountcontact_assoc", [][2]uuid.UUID{{accID, contactID}}))
	require.NoError(t, w.Finish())
	bundle, err := archive.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bundle.Close() })

	backend := newFakeBackend()
	// Pre-seed the association: the fake target echoes source ids back
	// as new ids, so this is exactly the pair the import will replay.
	// The duplicate-key response must be suppressed, not surfaced.
	backend.assocs["accountcontact_assoc"] = map[[2]uuid.UUID]bool{{accID, contactID}: true}
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)

	newAccID, ok := res.IDMap.Get("account", accID)
	require.True(t, ok)
	newContactID, ok := res.IDMap.Get("contact", contactID)
	require.True(t, ok)
	require.True(t, backend.assocs["accountcontact_assoc"][[2]uuid.UUID{newAccID, newContactID}])
}

func TestImportOwnerFieldRemappedThroughUserMap(t *testing.T) {
	s := &schema.Schema{Entities: []schema.EntityDescriptor{
		{Name: "account", PrimaryID: "accountid", Fields: []schema.FieldDescriptor{
			{Name: "ownerid", Type: schema.TypeReference, LookupEntity: "systemuser", CreateValid: true, UpdateValid: true},
		}},
	}}
	sourceUser := uuid.New()
	targetUser := uuid.New()
	unmappedUser := uuid.New()
	fallback := uuid.New()

	id1 := uuid.New()
	r1 := schema.NewRecord("account", id1)
	r1.Fields["ownerid"] = value.Reference{Entity: "systemuser", ID: sourceUser}

	id2 := uuid.New()
	r2 := schema.NewRecord("account", id2)
	r2.Fields["ownerid"] = value.Reference{Entity: "systemuser", ID: unmappedUser}

	bundle := buildBundle(t, s, map[string][]*schema.Record{"account": {r1, r2}})

	backend := newFakeBackend()
	p := &onePool{client: backend.client()}
	bus := report.NewBus()
	md := &metadata.Static{Schema: s}

	res, err := Run(context.Background(), bundle, md, p, bus, Options{
		OwnerFieldsByEntity: map[string][]string{"account": {"ownerid"}},
		UserMap:             map[uuid.UUID]uuid.UUID{sourceUser: targetUser},
		OwnerFallback:       fallback,
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)

	newID1, ok := res.IDMap.Get("account", id1)
	require.True(t, ok)
	newID2, ok := res.IDMap.Get("account", id2)
	require.True(t, ok)

	ref1 := backend.store["account"][newID1].Fields["ownerid"].(value.Reference)
	require.Equal(t, targetUser, ref1.ID)

	ref2 := backend.store["account"][newID2].Fields["ownerid"].(value.Reference)
	require.Equal(t, fallback, ref2.ID)
}
