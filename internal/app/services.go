package app

import (
	"context"

	"vextral/internal/ai"
	"vextral/internal/model"
	"vextral/internal/vectorstore"
)

// Embedder turns text into vectors. Implemented by ai.EmbeddingModel.
type Embedder interface {
	Embed(ctx context.Context, text, inputType string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error)
}

// Generator produces a chat completion. Implemented by ai.ChatModel.
type Generator interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

// VectorIndex is the gateway to the per-tenant vector collections.
// Implemented by vectorstore.Store.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, tenantID string) error
	UpsertChunks(ctx context.Context, tenantID string, points []vectorstore.Point) error
	Search(ctx context.Context, tenantID string, vector []float32, topK int, sourceFile *string, scoreThreshold float32) ([]vectorstore.ScoredChunk, error)
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
}

// DocumentStore is the metadata store for uploaded documents.
type DocumentStore interface {
	Create(doc *model.Document) error
	GetByTenantAndFilename(tenantID, filename string) (*model.Document, error)
	ListByTenant(tenantID string) ([]model.Document, error)
	DeleteByTenantAndFilename(tenantID, filename string) error
}

// TurnStore is the durable chat history store.
type TurnStore interface {
	ListByTenant(tenantID string, sourceFile *string, limit int) ([]model.ChatTurn, error)
	DeleteByTenant(tenantID string, sourceFile *string) error
	DeleteAllByTenant(tenantID string) error
}

// TurnQueue enqueues chat turns for the async persist worker.
type TurnQueue interface {
	Publish(ctx context.Context, turn model.ChatTurn) error
}

// HistoryCache is the read cache over recent chat history.
type HistoryCache interface {
	GetHistory(ctx context.Context, tenantID string, sourceFile *string) ([]model.ChatTurn, bool, error)
	SetHistory(ctx context.Context, tenantID string, sourceFile *string, turns []model.ChatTurn) error
	DeleteHistory(ctx context.Context, tenantID string, sourceFile *string) error
	DeleteTenantHistory(ctx context.Context, tenantID string) error
	MarkDirty(ctx context.Context, tenantID string, sourceFile *string) error
	IsDirty(ctx context.Context, tenantID string, sourceFile *string) (bool, error)
}
