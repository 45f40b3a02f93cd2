package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"vextral/internal/chunker"
	"vextral/internal/parser"
	"vextral/internal/retry"
)

func testUploadService(index *fakeIndex, docs *fakeDocStore, embedder *fakeEmbedder) *UploadService {
	return NewUploadService(
		parser.NewService(nil),
		chunker.New(40, 8, 2),
		embedder,
		index,
		docs,
		retry.NewPolicy(1, time.Millisecond, time.Millisecond),
		8,
		2,
	)
}

func loremBytes() []byte {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "Section %d of the handbook covers travel policy rules and reimbursement limits for staff in detail.\n\n", i)
	}
	return []byte(b.String())
}

func TestUploadIndexesDocument(t *testing.T) {
	index := newFakeIndex()
	docs := newFakeDocStore()
	svc := testUploadService(index, docs, &fakeEmbedder{})

	var stages []Stage
	svc.OnStage = func(st Stage, _, _ string) { stages = append(stages, st) }

	result, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if result.ChunksProcessed == 0 {
		t.Fatal("no chunks processed")
	}
	if got := len(index.upserted["t1"]); got != result.ChunksProcessed {
		t.Fatalf("indexed %d points, reported %d", got, result.ChunksProcessed)
	}

	doc, _ := docs.GetByTenantAndFilename("t1", "notes.txt")
	if doc == nil {
		t.Fatal("metadata record missing")
	}
	if doc.ChunkCount != result.ChunksProcessed {
		t.Fatalf("chunk count mismatch: %d vs %d", doc.ChunkCount, result.ChunksProcessed)
	}

	for _, p := range index.upserted["t1"] {
		if p.Payload.DocumentID != doc.ID {
			t.Fatalf("point owned by %s, want %s", p.Payload.DocumentID, doc.ID)
		}
		if p.Payload.SourceFile != "notes.txt" {
			t.Fatalf("unexpected source file %s", p.Payload.SourceFile)
		}
	}

	if stages[0] != StageReceived || stages[len(stages)-1] != StageComplete {
		t.Fatalf("unexpected stage sequence %v", stages)
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	svc := testUploadService(newFakeIndex(), newFakeDocStore(), &fakeEmbedder{})

	_, err := svc.Upload(context.Background(), "t1", "virus.exe", []byte("x"), false)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestUploadRejectsDuplicateWithoutReplace(t *testing.T) {
	index := newFakeIndex()
	docs := newFakeDocStore()
	svc := testUploadService(index, docs, &fakeEmbedder{})

	if _, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	_, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false)
	if !errors.Is(err, ErrDuplicateFilename) {
		t.Fatalf("expected ErrDuplicateFilename, got %v", err)
	}
}

func TestUploadReplaceRemovesPriorDocument(t *testing.T) {
	index := newFakeIndex()
	docs := newFakeDocStore()
	svc := testUploadService(index, docs, &fakeEmbedder{})

	first, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false)
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}

	second, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), true)
	if err != nil {
		t.Fatalf("replace upload failed: %v", err)
	}
	if !second.Replaced {
		t.Fatal("replace not reported")
	}
	if second.DocumentID == first.DocumentID {
		t.Fatal("replacement should mint a new document id")
	}

	wantDeleted := "t1/" + first.DocumentID
	found := false
	for _, d := range index.deleted {
		if d == wantDeleted {
			found = true
		}
	}
	if !found {
		t.Fatalf("prior document vectors not deleted: %v", index.deleted)
	}
}

func TestUploadReplaceKeepsPriorWhenEmbeddingFails(t *testing.T) {
	index := newFakeIndex()
	docs := newFakeDocStore()
	embedder := &fakeEmbedder{}
	svc := testUploadService(index, docs, embedder)

	first, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false)
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}

	embedder.failBatch = true
	_, err = svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), true)
	if !errors.Is(err, ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}

	doc, _ := docs.GetByTenantAndFilename("t1", "notes.txt")
	if doc == nil || doc.ID != first.DocumentID {
		t.Fatalf("prior document lost on failed replace: %+v", doc)
	}
	if len(index.deleted) != 0 {
		t.Fatalf("prior vectors must survive a failed replace: %v", index.deleted)
	}
	if got := len(index.upserted["t1"]); got != first.ChunksProcessed {
		t.Fatalf("prior chunk set changed: %d vs %d", got, first.ChunksProcessed)
	}
}

func TestUploadEmbeddingFailure(t *testing.T) {
	index := newFakeIndex()
	svc := testUploadService(index, newFakeDocStore(), &fakeEmbedder{failBatch: true})

	_, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false)
	if !errors.Is(err, ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}
	if len(index.upserted["t1"]) != 0 {
		t.Fatal("no vectors should be written after embedding failure")
	}
}

func TestUploadIndexFailureRollsBack(t *testing.T) {
	index := newFakeIndex()
	index.failUpsert = true
	docs := newFakeDocStore()
	svc := testUploadService(index, docs, &fakeEmbedder{})

	_, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}

	if len(index.deleted) == 0 {
		t.Fatal("rollback delete never issued")
	}
	if doc, _ := docs.GetByTenantAndFilename("t1", "notes.txt"); doc != nil {
		t.Fatal("metadata must not exist after failed upload")
	}
}

func TestUploadEmptyFileFails(t *testing.T) {
	svc := testUploadService(newFakeIndex(), newFakeDocStore(), &fakeEmbedder{})

	_, err := svc.Upload(context.Background(), "t1", "notes.txt", nil, false)
	if !errors.Is(err, ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure, got %v", err)
	}
}

func TestDeleteRemovesVectorsAndMetadata(t *testing.T) {
	index := newFakeIndex()
	docs := newFakeDocStore()
	svc := testUploadService(index, docs, &fakeEmbedder{})

	result, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if err := svc.Delete(context.Background(), "t1", "notes.txt"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if doc, _ := docs.GetByTenantAndFilename("t1", "notes.txt"); doc != nil {
		t.Fatal("metadata still present")
	}

	wantDeleted := "t1/" + result.DocumentID
	found := false
	for _, d := range index.deleted {
		if d == wantDeleted {
			found = true
		}
	}
	if !found {
		t.Fatalf("vectors not deleted: %v", index.deleted)
	}
}

func TestDeleteUnknownDocument(t *testing.T) {
	svc := testUploadService(newFakeIndex(), newFakeDocStore(), &fakeEmbedder{})

	err := svc.Delete(context.Background(), "t1", "ghost.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteKeepsMetadataWhenIndexFails(t *testing.T) {
	index := newFakeIndex()
	docs := newFakeDocStore()
	svc := testUploadService(index, docs, &fakeEmbedder{})

	if _, err := svc.Upload(context.Background(), "t1", "notes.txt", loremBytes(), false); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	index.failDelete = true
	err := svc.Delete(context.Background(), "t1", "notes.txt")
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if doc, _ := docs.GetByTenantAndFilename("t1", "notes.txt"); doc == nil {
		t.Fatal("metadata must survive until vectors are gone")
	}
}
