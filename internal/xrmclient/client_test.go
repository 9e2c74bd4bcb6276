package xrmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-tools/xrm-migrate/internal/metadata"
	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/schema"
	"github.com/dataplane-tools/xrm-migrate/internal/value"
)

func TestToWireSkipsNullFields(t *testing.T) {
	r := schema.NewRecord("account", uuid.New())
	r.Fields["name"] = value.String("Acme")
	r.Fields["description"] = value.Null{}

	w, err := toWire(r)
	require.NoError(t, err)
	require.Equal(t, "Acme", w.Fields["name"])
	_, present := w.Fields["description"]
	require.False(t, present)
}

func TestToWireCarriesLookupEntity(t *testing.T) {
	targetID := uuid.New()
	r := schema.NewRecord("contact", uuid.New())
	r.Fields["parentaccountid"] = value.Reference{Entity: "account", ID: targetID}

	w, err := toWire(r)
	require.NoError(t, err)
	require.Equal(t, targetID.String(), w.Fields["parentaccountid"])
	require.Equal(t, "account", w.Lookup["parentaccountid"])
}

func TestFromWireRoundTripsReference(t *testing.T) {
	targetID := uuid.New()
	w := wireRecord{
		ID:     uuid.New(),
		Fields: map[string]string{"name": "Acme", "parentaccountid": targetID.String()},
		Lookup: map[string]string{"parentaccountid": "account"},
	}
	r := fromWire("contact", w)
	require.Equal(t, "contact", r.Entity)
	require.Equal(t, value.String("Acme"), r.Fields["name"])
	require.Equal(t, value.Reference{Entity: "account", ID: targetID}, r.Fields["parentaccountid"])
}

func TestUpsertSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(upsertResponse{ID: uuid.New(), Created: true})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "secret-token"})
	rec := schema.NewRecord("account", uuid.New())
	rec.Fields["name"] = value.String("Acme")

	result, err := c.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Created)
	require.Equal(t, "Bearer secret-token", gotAuth)
}

func TestUpsertMultipleTranslates501ToNotSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	records := []*schema.Record{schema.NewRecord("account", uuid.New())}
	_, err := c.UpsertMultiple(context.Background(), "account", records)

	var nse *pool.NotSupportedError
	require.ErrorAs(t, err, &nse)
	require.Equal(t, "account", nse.Entity)
	require.Equal(t, "UpsertMultiple", nse.Op)
}

func TestDoSurfacesThrottling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.RetrieveMultiple(context.Background(), "account", 100, "")
	require.Error(t, err)

	var te *pool.ThrottledError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "2", te.RetryAfter)
}

func TestGetFieldMetadataTranslatesWire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]fieldMetaWire{
			{Name: "parentaccountid", Type: "reference", LookupEntity: "account", IsCreateValid: true, IsUpdateValid: true, RequiredLevel: "none"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	fields, err := c.GetFieldMetadata(context.Background(), "contact")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Equal(t, "parentaccountid", fields[0].Name)
	require.Equal(t, "account", fields[0].LookupEntity)
}

func TestGetFieldMetadataWrapsFailureAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.GetFieldMetadata(context.Background(), "contact")

	var ue *metadata.UnavailableError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "contact", ue.Entity)
}

func TestDoNetworkFailure(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Upsert(context.Background(), schema.NewRecord("account", uuid.New()))
	require.Error(t, err)

	var ne *pool.NetworkError
	require.ErrorAs(t, err, &ne)
}

func TestDoSurfacesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "stale"})
	_, err := c.Upsert(context.Background(), schema.NewRecord("account", uuid.New()))
	require.Error(t, err)

	var ae *pool.AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, http.StatusUnauthorized, ae.Status)
}
