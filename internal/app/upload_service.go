package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vextral/internal/ai"
	"vextral/internal/chunker"
	"vextral/internal/model"
	"vextral/internal/parser"
	"vextral/internal/retry"
	"vextral/internal/vectorstore"
)

// Stage names for the upload pipeline, reported through the OnStage hook.
type Stage string

const (
	StageReceived      Stage = "received"
	StageParsing       Stage = "parsing"
	StageChunking      Stage = "chunking"
	StageEmbedding     Stage = "embedding"
	StageIndexing      Stage = "indexing"
	StageMetadataWrite Stage = "metadata_write"
	StageComplete      Stage = "complete"
)

// UploadResult reports a completed upload.
type UploadResult struct {
	DocumentID      string `json:"document_id"`
	Filename        string `json:"filename"`
	ChunksProcessed int    `json:"chunks_processed"`
	Replaced        bool   `json:"replaced"`
}

// UploadService runs the parse/chunk/embed/index pipeline. Any stage failure
// rolls back vectors already written, so a document is either fully indexed
// or absent.
type UploadService struct {
	parser    *parser.Service
	chunker   *chunker.Chunker
	embedder  Embedder
	index     VectorIndex
	documents DocumentStore
	retry     retry.Policy

	embedBatchSize int
	embedWorkers   int

	// OnStage, when set, observes pipeline progress. Used by logging.
	OnStage func(stage Stage, tenantID, filename string)
}

func NewUploadService(
	parserSvc *parser.Service,
	chunkerSvc *chunker.Chunker,
	embedder Embedder,
	index VectorIndex,
	documents DocumentStore,
	retryPolicy retry.Policy,
	embedBatchSize, embedWorkers int,
) *UploadService {
	if embedBatchSize <= 0 {
		embedBatchSize = 32
	}
	if embedWorkers <= 0 {
		embedWorkers = 1
	}
	return &UploadService{
		parser:         parserSvc,
		chunker:        chunkerSvc,
		embedder:       embedder,
		index:          index,
		documents:      documents,
		retry:          retryPolicy,
		embedBatchSize: embedBatchSize,
		embedWorkers:   embedWorkers,
	}
}

func (s *UploadService) stage(st Stage, tenantID, filename string) {
	if s.OnStage != nil {
		s.OnStage(st, tenantID, filename)
	}
}

// Upload indexes one file for a tenant. When replace is false an existing
// (tenant, filename) pair is rejected; when true the prior document is kept
// until the replacement has parsed and embedded, so a bad re-upload cannot
// destroy the version already indexed.
func (s *UploadService) Upload(ctx context.Context, tenantID, filename string, data []byte, replace bool) (*UploadResult, error) {
	s.stage(StageReceived, tenantID, filename)

	if !s.parser.Supported(filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrParseFailure)
	}

	prior, err := s.checkExisting(tenantID, filename, replace)
	if err != nil {
		return nil, err
	}

	s.stage(StageParsing, tenantID, filename)
	segments, err := s.parser.Parse(ctx, filename, data)
	if err != nil {
		return nil, mapParseError(err)
	}

	s.stage(StageChunking, tenantID, filename)
	chunks := s.chunker.Split(segments)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no usable text in %s", ErrParseFailure, filename)
	}

	if err := s.index.EnsureCollection(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	docID := uuid.NewString()

	s.stage(StageEmbedding, tenantID, filename)
	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}

	s.stage(StageIndexing, tenantID, filename)
	if prior != nil {
		if err := s.removePrior(ctx, tenantID, prior); err != nil {
			return nil, err
		}
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = vectorstore.Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: vectorstore.Payload{
				DocumentID: docID,
				SourceFile: filename,
				Text:       chunk.Text,
				Ordinal:    chunk.Ordinal,
				Page:       chunk.Page,
				ChunkType:  chunk.Type,
			},
		}
	}
	if err := s.index.UpsertChunks(ctx, tenantID, points); err != nil {
		s.rollback(ctx, tenantID, docID, filename)
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	s.stage(StageMetadataWrite, tenantID, filename)
	doc := &model.Document{
		ID:         docID,
		TenantID:   tenantID,
		Filename:   filename,
		ChunkCount: len(chunks),
		UploadedAt: time.Now(),
	}
	if err := s.documents.Create(doc); err != nil {
		s.rollback(ctx, tenantID, docID, filename)
		return nil, fmt.Errorf("write document metadata: %w", err)
	}

	s.stage(StageComplete, tenantID, filename)
	return &UploadResult{
		DocumentID:      docID,
		Filename:        filename,
		ChunksProcessed: len(chunks),
		Replaced:        prior != nil,
	}, nil
}

// checkExisting enforces (tenant, filename) uniqueness. The returned document
// is the one to replace; its actual removal waits until the new chunk set has
// embedded.
func (s *UploadService) checkExisting(tenantID, filename string, replace bool) (*model.Document, error) {
	existing, err := s.documents.GetByTenantAndFilename(tenantID, filename)
	if err != nil {
		return nil, fmt.Errorf("check existing document: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if !replace {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFilename, filename)
	}
	return existing, nil
}

// removePrior drops the replaced document. Vectors go first so a failure
// cannot orphan them behind a deleted metadata record.
func (s *UploadService) removePrior(ctx context.Context, tenantID string, prior *model.Document) error {
	if err := s.index.DeleteDocument(ctx, tenantID, prior.ID); err != nil {
		return fmt.Errorf("%w: remove prior vectors: %v", ErrIndexUnavailable, err)
	}
	if err := s.documents.DeleteByTenantAndFilename(tenantID, prior.Filename); err != nil {
		return fmt.Errorf("remove prior document: %w", err)
	}
	return nil
}

// embedAll embeds chunks in batches with bounded parallelism. All batches
// complete before indexing starts; one failed batch fails the document.
func (s *UploadService) embedAll(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.embedWorkers)

	for start := 0; start < len(chunks); start += s.embedBatchSize {
		start := start
		end := start + s.embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		g.Go(func() error {
			texts := make([]string, end-start)
			for i, chunk := range chunks[start:end] {
				texts[i] = chunk.Text
			}

			var batch [][]float32
			err := s.retry.Do(gctx, func() error {
				var embedErr error
				batch, embedErr = s.embedder.EmbedBatch(gctx, texts, ai.InputTypePassage)
				return embedErr
			}, ai.IsTransient)
			if err != nil {
				return fmt.Errorf("embed batch %d..%d: %w", start, end-1, err)
			}

			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// rollback removes any vectors written for a failed upload. It runs on a
// detached context so a client disconnect cannot leave a half-indexed
// document behind.
func (s *UploadService) rollback(ctx context.Context, tenantID, docID, filename string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.index.DeleteDocument(cleanupCtx, tenantID, docID); err != nil {
		log.Printf("[upload] rollback failed tenant=%s file=%s doc=%s: %v", tenantID, filename, docID, err)
	}
}

// Delete removes a document's vectors and metadata. Vector deletion must
// succeed first so the index never holds orphans.
func (s *UploadService) Delete(ctx context.Context, tenantID, filename string) error {
	doc, err := s.documents.GetByTenantAndFilename(tenantID, filename)
	if err != nil {
		return fmt.Errorf("look up document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}

	err = s.retry.Do(ctx, func() error {
		return s.index.DeleteDocument(ctx, tenantID, doc.ID)
	}, func(err error) bool { return errors.Is(err, vectorstore.ErrUnavailable) })
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	if err := s.documents.DeleteByTenantAndFilename(tenantID, filename); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	return nil
}

// List returns the tenant's uploaded documents, newest first.
func (s *UploadService) List(ctx context.Context, tenantID string) ([]model.Document, error) {
	docs, err := s.documents.ListByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, parser.ErrUnsupportedFormat):
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	case errors.Is(err, parser.ErrParseFailure):
		return fmt.Errorf("%w: %v", ErrParseFailure, err)
	default:
		return fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
}
