package store

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
	"github.com/lueurxax/legaldocml-crawler/internal/searchclient"
)

func TestSearchStoreUpsertIndexesAllFields(t *testing.T) {
	t.Parallel()

	var captured []searchclient.IndexDocument

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewSearchStore(searchclient.New(searchclient.Config{BaseURL: srv.URL}))

	doc := &document.LegalDocument{
		DocumentID:   "KARE1",
		Court:        "BGH",
		ECLI:         "ECLI:DE:BGH:2024:1",
		DecisionDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:       document.StatusProcessed,
	}

	require.NoError(t, store.Upsert(t.Context(), doc))
	require.Len(t, captured, 1)
	assert.Equal(t, "KARE1", captured[0]["document_id"])
	assert.Equal(t, "BGH", captured[0]["court"])
	assert.Equal(t, float64(2024), captured[0]["year"])
}

func TestSearchStoreFindByDocumentIDNotFoundReturnsNilNoError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewSearchStore(searchclient.New(searchclient.Config{BaseURL: srv.URL}))

	found, err := store.FindByDocumentID(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSearchStoreCountByCourtUsesZeroRows(t *testing.T) {
	t.Parallel()

	var gotRows string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRows = r.URL.Query().Get("rows")
		_ = json.NewEncoder(w).Encode(searchclient.SearchResponse{Response: searchclient.ResponseBody{NumFound: 7}})
	}))
	defer srv.Close()

	store := NewSearchStore(searchclient.New(searchclient.Config{BaseURL: srv.URL}))

	count, err := store.CountByCourt(t.Context(), "BGH")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, "0", gotRows)
}

func TestDualStoreUpsertWritesArchiveBeforeSearch(t *testing.T) {
	t.Parallel()

	var order []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "search")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	archive, err := NewArchiveStore(t.TempDir())
	require.NoError(t, err)

	dual := NewDualStore(archive, NewSearchStore(searchclient.New(searchclient.Config{BaseURL: srv.URL})))

	doc := newDoc("KARE1", "BGH", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, dual.Upsert(t.Context(), doc))

	assert.NotEmpty(t, doc.FilePath, "archive upsert must run and set FilePath before the search write")
	assert.Equal(t, []string{"search"}, order)
}
