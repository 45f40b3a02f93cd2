package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vextral/internal/ai"
	"vextral/internal/model"
	"vextral/internal/vectorstore"
)

type fakeEmbedder struct {
	mu         sync.Mutex
	batchCalls int
	failBatch  bool
	failQuery  bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text, _ string) ([]float32, error) {
	if f.failQuery {
		return nil, errors.New("embed backend down")
	}
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string, _ string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	if f.failBatch {
		return nil, errors.New("embed backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

type fakeIndex struct {
	mu sync.Mutex

	ensured    []string
	upserted   map[string][]vectorstore.Point
	deleted    []string
	searchHits []vectorstore.ScoredChunk

	failUpsert bool
	failSearch bool
	failDelete bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserted: make(map[string][]vectorstore.Point)}
}

func (f *fakeIndex) EnsureCollection(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, tenantID)
	return nil
}

func (f *fakeIndex) UpsertChunks(_ context.Context, tenantID string, points []vectorstore.Point) error {
	if f.failUpsert {
		return fmt.Errorf("%w: write refused", vectorstore.ErrUnavailable)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted[tenantID] = append(f.upserted[tenantID], points...)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, _ int, _ *string, _ float32) ([]vectorstore.ScoredChunk, error) {
	if f.failSearch {
		return nil, fmt.Errorf("%w: search refused", vectorstore.ErrUnavailable)
	}
	return f.searchHits, nil
}

func (f *fakeIndex) DeleteDocument(_ context.Context, tenantID, documentID string) error {
	if f.failDelete {
		return fmt.Errorf("%w: delete refused", vectorstore.ErrUnavailable)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, tenantID+"/"+documentID)
	return nil
}

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]*model.Document)}
}

func docKey(tenantID, filename string) string { return tenantID + "/" + filename }

func (f *fakeDocStore) Create(doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := docKey(doc.TenantID, doc.Filename)
	if _, exists := f.docs[key]; exists {
		return errors.New("duplicate key")
	}
	f.docs[key] = doc
	return nil
}

func (f *fakeDocStore) GetByTenantAndFilename(tenantID, filename string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[docKey(tenantID, filename)], nil
}

func (f *fakeDocStore) ListByTenant(tenantID string) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Document
	for _, doc := range f.docs {
		if doc.TenantID == tenantID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeDocStore) DeleteByTenantAndFilename(tenantID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, docKey(tenantID, filename))
	return nil
}

type fakeTurnStore struct {
	mu      sync.Mutex
	turns   []model.ChatTurn
	cleared []string
}

func (f *fakeTurnStore) ListByTenant(tenantID string, sourceFile *string, limit int) ([]model.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ChatTurn
	// Newest first, matching the real repository.
	for i := len(f.turns) - 1; i >= 0 && len(out) < limit; i-- {
		turn := f.turns[i]
		if turn.TenantID != tenantID {
			continue
		}
		if sourceFile == nil && turn.SourceFile != nil {
			continue
		}
		if sourceFile != nil && (turn.SourceFile == nil || *turn.SourceFile != *sourceFile) {
			continue
		}
		out = append(out, turn)
	}
	return out, nil
}

func (f *fakeTurnStore) DeleteByTenant(tenantID string, sourceFile *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	label := "general"
	if sourceFile != nil {
		label = *sourceFile
	}
	f.cleared = append(f.cleared, tenantID+"/"+label)
	return nil
}

func (f *fakeTurnStore) DeleteAllByTenant(tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, tenantID+"/*")
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []model.ChatTurn
	fail      bool
}

func (f *fakeQueue) Publish(_ context.Context, turn model.ChatTurn) error {
	if f.fail {
		return errors.New("broker unreachable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, turn)
	return nil
}

type fakeHistoryCache struct {
	mu      sync.Mutex
	entries map[string][]model.ChatTurn
	dirty   map[string]bool
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{
		entries: make(map[string][]model.ChatTurn),
		dirty:   make(map[string]bool),
	}
}

func cacheKey(tenantID string, sourceFile *string) string {
	if sourceFile == nil {
		return tenantID + "/general"
	}
	return tenantID + "/doc/" + *sourceFile
}

func (f *fakeHistoryCache) GetHistory(_ context.Context, tenantID string, sourceFile *string) ([]model.ChatTurn, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns, ok := f.entries[cacheKey(tenantID, sourceFile)]
	return turns, ok, nil
}

func (f *fakeHistoryCache) SetHistory(_ context.Context, tenantID string, sourceFile *string, turns []model.ChatTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[cacheKey(tenantID, sourceFile)] = turns
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(_ context.Context, tenantID string, sourceFile *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, cacheKey(tenantID, sourceFile))
	return nil
}

func (f *fakeHistoryCache) DeleteTenantHistory(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.entries {
		delete(f.entries, key)
	}
	return nil
}

func (f *fakeHistoryCache) MarkDirty(_ context.Context, tenantID string, sourceFile *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty[cacheKey(tenantID, sourceFile)] = true
	return nil
}

func (f *fakeHistoryCache) IsDirty(_ context.Context, tenantID string, sourceFile *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty[cacheKey(tenantID, sourceFile)], nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	answer   string
	err      error
	messages [][]ai.ChatMessage
}

func (f *fakeGenerator) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}
