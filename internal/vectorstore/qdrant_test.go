package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnsureCollectionToleratesExisting(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut && r.URL.Path == "/collections/tenant_t1" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := NewStoreWithHTTP(server.URL, 4, server.Client())
	if err := store.EnsureCollection(context.Background(), "t1"); err != nil {
		t.Fatalf("ensure collection failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected collection + index calls, got %v", paths)
	}
	if paths[1] != "PUT /collections/tenant_t1/index" {
		t.Fatalf("expected payload index call, got %v", paths)
	}
}

func TestUpsertChunksBatches(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points []json.RawMessage `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		batchSizes = append(batchSizes, len(req.Points))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	points := make([]Point, 23)
	for i := range points {
		points[i] = Point{ID: "p", Vector: []float32{1}, Payload: Payload{Ordinal: i}}
	}

	store := NewStoreWithHTTP(server.URL, 1, server.Client())
	if err := store.UpsertChunks(context.Background(), "t1", points); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	want := []int{10, 10, 3}
	if len(batchSizes) != len(want) {
		t.Fatalf("unexpected batches %v", batchSizes)
	}
	for i := range want {
		if batchSizes[i] != want[i] {
			t.Fatalf("unexpected batches %v, want %v", batchSizes, want)
		}
	}
}

func TestSearchOrdersByScoreThenOrdinal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{"id": "c", "score": 0.8, "payload": map[string]interface{}{"ordinal": 7, "source_file": "a.pdf"}},
				{"id": "a", "score": 0.9, "payload": map[string]interface{}{"ordinal": 3, "source_file": "a.pdf"}},
				{"id": "b", "score": 0.8, "payload": map[string]interface{}{"ordinal": 2, "source_file": "a.pdf"}},
			},
		})
	}))
	defer server.Close()

	store := NewStoreWithHTTP(server.URL, 4, server.Client())
	hits, err := store.Search(context.Background(), "t1", []float32{1, 0, 0, 0}, 5, nil, 0.2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	gotIDs := []string{hits[0].ID, hits[1].ID, hits[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", gotIDs, want)
		}
	}
}

func TestSearchSendsSourceFilter(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
	}))
	defer server.Close()

	store := NewStoreWithHTTP(server.URL, 4, server.Client())
	src := "report.pdf"
	if _, err := store.Search(context.Background(), "t1", []float32{1}, 5, &src, 0.2); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	filter, ok := gotBody["filter"].(map[string]interface{})
	if !ok {
		t.Fatalf("filter missing from request: %v", gotBody)
	}
	must := filter["must"].([]interface{})
	cond := must[0].(map[string]interface{})
	if cond["key"] != "source_file" {
		t.Fatalf("unexpected filter %v", filter)
	}
}

func TestSearchMissingCollectionReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	store := NewStoreWithHTTP(server.URL, 4, server.Client())
	hits, err := store.Search(context.Background(), "empty-tenant", []float32{1}, 5, nil, 0.2)
	if err != nil {
		t.Fatalf("expected empty result for missing collection, got %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestServerFailureWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	store := NewStoreWithHTTP(server.URL, 4, server.Client())
	_, err := store.Search(context.Background(), "t1", []float32{1}, 5, nil, 0.2)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestDeleteDocumentToleratesMissingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	store := NewStoreWithHTTP(server.URL, 4, server.Client())
	if err := store.DeleteDocument(context.Background(), "t1", "doc-1"); err != nil {
		t.Fatalf("expected missing collection to be tolerated, got %v", err)
	}
}

func TestCollectionName(t *testing.T) {
	if got := CollectionName("acme"); got != "tenant_acme" {
		t.Fatalf("unexpected collection name %q", got)
	}
}
