package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ErrUnavailable means the vector index could not be reached or answered with
// a server-side failure. Callers treat it as retryable.
var ErrUnavailable = errors.New("vector index unavailable")

// Batch size for point upserts. Kept small so a single oversized request
// cannot stall the whole upload.
const upsertBatchSize = 10

// Payload is the per-point metadata stored alongside each vector.
type Payload struct {
	DocumentID string `json:"document_id"`
	SourceFile string `json:"source_file"`
	Text       string `json:"text"`
	Ordinal    int    `json:"ordinal"`
	Page       int    `json:"page"`
	ChunkType  string `json:"chunk_type"`
}

// Point is one vector with its payload, ready to upsert.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredChunk is one search hit.
type ScoredChunk struct {
	ID      string
	Score   float32
	Payload Payload
}

// Store is a Qdrant client over its REST API. Each tenant owns a dedicated
// collection, so cross-tenant reads are impossible by construction.
type Store struct {
	baseURL    string
	apiKey     string
	vectorSize int
	httpClient *http.Client
}

func NewStore(baseURL, apiKey string, vectorSize int, timeout time.Duration) *Store {
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		vectorSize: vectorSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewStoreWithHTTP is for tests that point the store at a local server.
func NewStoreWithHTTP(baseURL string, vectorSize int, httpClient *http.Client) *Store {
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		vectorSize: vectorSize,
		httpClient: httpClient,
	}
}

// CollectionName maps a tenant to its dedicated collection.
func CollectionName(tenantID string) string {
	return "tenant_" + tenantID
}

// EnsureCollection creates the tenant's collection and its source_file payload
// index. Both calls are idempotent: an existing collection or index is fine.
func (s *Store) EnsureCollection(ctx context.Context, tenantID string) error {
	name := CollectionName(tenantID)

	createBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": "Cosine",
		},
	}
	if err := s.call(ctx, http.MethodPut, "/collections/"+name, createBody, nil, http.StatusConflict); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	indexBody := map[string]interface{}{
		"field_name":   "source_file",
		"field_schema": "keyword",
	}
	if err := s.call(ctx, http.MethodPut, "/collections/"+name+"/index", indexBody, nil, http.StatusConflict); err != nil {
		return fmt.Errorf("create source_file index on %s: %w", name, err)
	}
	return nil
}

// UpsertChunks writes points in batches, waiting for each batch to be applied
// so a success here means the vectors are searchable.
func (s *Store) UpsertChunks(ctx context.Context, tenantID string, points []Point) error {
	name := CollectionName(tenantID)

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := make([]map[string]interface{}, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, map[string]interface{}{
				"id":      p.ID,
				"vector":  p.Vector,
				"payload": p.Payload,
			})
		}

		body := map[string]interface{}{"points": batch}
		if err := s.call(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil); err != nil {
			return fmt.Errorf("upsert points %d..%d into %s: %w", start, end-1, name, err)
		}
	}
	return nil
}

// Search returns up to topK chunks above scoreThreshold, optionally filtered
// to one source file. Results are ordered by score, ties broken by ordinal so
// equal-score chunks come back in document order.
func (s *Store) Search(ctx context.Context, tenantID string, vector []float32, topK int, sourceFile *string, scoreThreshold float32) ([]ScoredChunk, error) {
	name := CollectionName(tenantID)

	body := map[string]interface{}{
		"vector":          vector,
		"limit":           topK,
		"with_payload":    true,
		"score_threshold": scoreThreshold,
	}
	if sourceFile != nil {
		body["filter"] = map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "source_file", "match": map[string]interface{}{"value": *sourceFile}},
			},
		}
	}

	var parsed struct {
		Result []struct {
			ID      string  `json:"id"`
			Score   float32 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"result"`
	}
	err := s.call(ctx, http.MethodPost, "/collections/"+name+"/points/search", body, &parsed)
	if err != nil {
		// A tenant that never uploaded anything has no collection yet.
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	hits := make([]ScoredChunk, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		hits = append(hits, ScoredChunk{ID: r.ID, Score: r.Score, Payload: r.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Payload.Ordinal < hits[j].Payload.Ordinal
	})
	return hits, nil
}

// DeleteDocument removes every vector belonging to one document. A missing
// collection counts as already deleted.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	name := CollectionName(tenantID)

	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "document_id", "match": map[string]interface{}{"value": documentID}},
			},
		},
	}
	err := s.call(ctx, http.MethodPost, "/collections/"+name+"/points/delete?wait=true", body, nil, http.StatusNotFound)
	if err != nil {
		return fmt.Errorf("delete document %s from %s: %w", documentID, name, err)
	}
	return nil
}

// Healthy reports whether the index answers its readiness probe.
func (s *Store) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("qdrant status %d: %s", e.status, e.body)
}

// call performs one JSON request. Transport failures and 5xx responses are
// wrapped in ErrUnavailable; statuses listed in tolerated pass as success.
func (s *Store) call(ctx context.Context, method, path string, body interface{}, out interface{}, tolerated ...int) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		for _, code := range tolerated {
			if resp.StatusCode == code {
				return nil
			}
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrUnavailable, &apiError{status: resp.StatusCode, body: string(raw)})
		}
		return &apiError{status: resp.StatusCode, body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
