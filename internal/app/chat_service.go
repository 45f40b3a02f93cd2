package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"vextral/internal/ai"
	"vextral/internal/model"
	"vextral/internal/retry"
	"vextral/internal/vectorstore"
)

const (
	ragSystemPrompt = "You are a helpful assistant that answers questions using only the provided document excerpts. " +
		"Cite the source filename when you use an excerpt. " +
		"If the excerpts do not contain the answer, say so plainly instead of guessing."

	generalSystemPrompt = "You are a helpful, knowledgeable assistant. " +
		"Answer clearly and concisely."
)

// Answer is the result of one question.
type Answer struct {
	Answer     string   `json:"answer"`
	Mode       string   `json:"mode"`
	Sources    []string `json:"sources"`
	ChunksUsed int      `json:"chunks_used"`

	// PersistenceWarning is set when the turn could not be queued for
	// durable history. The answer itself is still valid.
	PersistenceWarning bool `json:"persistence_warning,omitempty"`
}

// ChatService answers questions in RAG mode (sourceFile set, or any-document
// retrieval) and general mode, and manages per-tenant chat history.
type ChatService struct {
	embedder  Embedder
	ragModel  Generator
	genModel  Generator
	index     VectorIndex
	documents DocumentStore
	turns     TurnStore
	history   HistoryCache
	queue     TurnQueue
	retry     retry.Policy

	// genRetry bounds synchronous generation separately from the
	// embedding/index policy: the caller is waiting, so one retry at most.
	genRetry retry.Policy

	topK            int
	scoreThreshold  float32
	maxHistoryTurns int
	generateTimeout time.Duration
}

func NewChatService(
	embedder Embedder,
	ragModel, genModel Generator,
	index VectorIndex,
	documents DocumentStore,
	turns TurnStore,
	history HistoryCache,
	queue TurnQueue,
	retryPolicy retry.Policy,
	generatePolicy retry.Policy,
	topK int,
	scoreThreshold float32,
	maxHistoryTurns int,
	generateTimeout time.Duration,
) *ChatService {
	if topK <= 0 {
		topK = 5
	}
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = 6
	}
	if generateTimeout <= 0 {
		generateTimeout = 60 * time.Second
	}
	if generatePolicy.MaxAttempts > 2 {
		generatePolicy.MaxAttempts = 2
	}
	return &ChatService{
		embedder:        embedder,
		ragModel:        ragModel,
		genModel:        genModel,
		index:           index,
		documents:       documents,
		turns:           turns,
		history:         history,
		queue:           queue,
		retry:           retryPolicy,
		genRetry:        generatePolicy,
		topK:            topK,
		scoreThreshold:  scoreThreshold,
		maxHistoryTurns: maxHistoryTurns,
		generateTimeout: generateTimeout,
	}
}

// Ask answers one question. ragMode selects retrieval; sourceFile further
// narrows retrieval to one document and must name an uploaded file. recent is
// the caller's view of the conversation; when non-empty it takes precedence
// over stored history, which lags behind it while queued turns await the
// persist worker.
func (s *ChatService) Ask(ctx context.Context, tenantID, question string, ragMode bool, sourceFile *string, recent []ai.ChatMessage) (*Answer, error) {
	question = strings.TrimSpace(question)
	if len(question) < 3 {
		return nil, fmt.Errorf("question too short")
	}

	if sourceFile != nil {
		doc, err := s.documents.GetByTenantAndFilename(tenantID, *sourceFile)
		if err != nil {
			return nil, fmt.Errorf("look up document: %w", err)
		}
		if doc == nil || doc.ChunkCount == 0 {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, *sourceFile)
		}
	}

	history := s.promptHistory(ctx, tenantID, sourceFile, recent)

	var result *Answer
	var err error
	if ragMode {
		result, err = s.answerRAG(ctx, tenantID, question, sourceFile, history)
	} else {
		result, err = s.answerGeneral(ctx, question, history)
	}
	if err != nil {
		return nil, err
	}

	result.PersistenceWarning = !s.persistTurn(ctx, tenantID, question, result.Answer, sourceFile)
	return result, nil
}

// promptHistory resolves the conversation context for the prompt. Caller
// history wins when supplied, stripped to well-formed user/assistant turns
// and capped to the most recent exchanges.
func (s *ChatService) promptHistory(ctx context.Context, tenantID string, sourceFile *string, recent []ai.ChatMessage) []ai.ChatMessage {
	if len(recent) > 0 {
		kept := make([]ai.ChatMessage, 0, len(recent))
		for _, m := range recent {
			if m.Role != "user" && m.Role != "assistant" {
				continue
			}
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			kept = append(kept, m)
		}
		if max := 2 * s.maxHistoryTurns; len(kept) > max {
			kept = kept[len(kept)-max:]
		}
		return kept
	}

	turns, err := s.loadHistory(ctx, tenantID, sourceFile)
	if err != nil {
		// History is an enrichment; answering without it beats failing.
		log.Printf("[chat] load history failed tenant=%s: %v", tenantID, err)
		return nil
	}
	return turnsToMessages(turns)
}

func (s *ChatService) answerRAG(ctx context.Context, tenantID, question string, sourceFile *string, history []ai.ChatMessage) (*Answer, error) {
	var queryVec []float32
	err := s.retry.Do(ctx, func() error {
		var embedErr error
		queryVec, embedErr = s.embedder.Embed(ctx, question, ai.InputTypeQuery)
		return embedErr
	}, ai.IsTransient)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %v", ErrEmbeddingFailure, err)
	}

	var hits []vectorstore.ScoredChunk
	err = s.retry.Do(ctx, func() error {
		var searchErr error
		hits, searchErr = s.index.Search(ctx, tenantID, queryVec, s.topK, sourceFile, s.scoreThreshold)
		return searchErr
	}, func(err error) bool { return errors.Is(err, vectorstore.ErrUnavailable) })
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	messages := buildRAGMessages(question, hits, history)
	answer, err := s.generate(ctx, s.ragModel, messages)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Answer:     answer,
		Mode:       "rag",
		Sources:    distinctSources(hits),
		ChunksUsed: len(hits),
	}, nil
}

func (s *ChatService) answerGeneral(ctx context.Context, question string, history []ai.ChatMessage) (*Answer, error) {
	messages := make([]ai.ChatMessage, 0, 2+len(history))
	messages = append(messages, ai.ChatMessage{Role: "system", Content: generalSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})

	answer, err := s.generate(ctx, s.genModel, messages)
	if err != nil {
		return nil, err
	}
	return &Answer{Answer: answer, Mode: "general", Sources: []string{}}, nil
}

func (s *ChatService) generate(ctx context.Context, gen Generator, messages []ai.ChatMessage) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()

	var answer string
	err := s.genRetry.Do(genCtx, func() error {
		var genErr error
		answer, genErr = gen.Complete(genCtx, messages)
		return genErr
	}, ai.IsTransient)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGenerationFailure)
	}
	return answer, nil
}

// persistTurn queues the turn for the async worker and invalidates the cached
// history snapshot. Returns false when the turn could not be queued.
func (s *ChatService) persistTurn(ctx context.Context, tenantID, question, answer string, sourceFile *string) bool {
	turn := model.ChatTurn{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Question:   question,
		Answer:     answer,
		SourceFile: sourceFile,
		CreatedAt:  time.Now(),
	}

	// Detached from the request so a disconnect does not drop the turn.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.history.MarkDirty(persistCtx, tenantID, sourceFile); err != nil {
		log.Printf("[chat] mark history dirty failed tenant=%s: %v", tenantID, err)
	}
	if err := s.history.DeleteHistory(persistCtx, tenantID, sourceFile); err != nil {
		log.Printf("[chat] invalidate history cache failed tenant=%s: %v", tenantID, err)
	}

	if err := s.queue.Publish(persistCtx, turn); err != nil {
		log.Printf("[chat] queue turn failed tenant=%s: %v", tenantID, err)
		return false
	}
	return true
}

// loadHistory returns the most recent turns in chronological order, serving
// from cache unless a recent write marked it dirty.
func (s *ChatService) loadHistory(ctx context.Context, tenantID string, sourceFile *string) ([]model.ChatTurn, error) {
	dirty, err := s.history.IsDirty(ctx, tenantID, sourceFile)
	if err != nil {
		dirty = true
	}

	if !dirty {
		if turns, hit, err := s.history.GetHistory(ctx, tenantID, sourceFile); err == nil && hit {
			return turns, nil
		}
	}

	turns, err := s.turns.ListByTenant(tenantID, sourceFile, s.maxHistoryTurns)
	if err != nil {
		return nil, err
	}
	// Newest-first from the store; flip to chronological for prompting.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	if !dirty {
		if err := s.history.SetHistory(ctx, tenantID, sourceFile, turns); err != nil {
			log.Printf("[chat] cache history failed tenant=%s: %v", tenantID, err)
		}
	}
	return turns, nil
}

// History returns recent turns in chronological order for display.
func (s *ChatService) History(ctx context.Context, tenantID string, sourceFile *string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 {
		limit = s.maxHistoryTurns
	}
	turns, err := s.turns.ListByTenant(tenantID, sourceFile, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ClearHistory deletes stored turns. A sourceFile clears that document's
// thread, generalOnly clears the general thread, neither wipes the tenant.
func (s *ChatService) ClearHistory(ctx context.Context, tenantID string, sourceFile *string, generalOnly bool) error {
	switch {
	case sourceFile != nil:
		if err := s.turns.DeleteByTenant(tenantID, sourceFile); err != nil {
			return fmt.Errorf("clear document history: %w", err)
		}
		if err := s.history.DeleteHistory(ctx, tenantID, sourceFile); err != nil {
			log.Printf("[chat] drop cached history failed tenant=%s: %v", tenantID, err)
		}
	case generalOnly:
		if err := s.turns.DeleteByTenant(tenantID, nil); err != nil {
			return fmt.Errorf("clear general history: %w", err)
		}
		if err := s.history.DeleteHistory(ctx, tenantID, nil); err != nil {
			log.Printf("[chat] drop cached history failed tenant=%s: %v", tenantID, err)
		}
	default:
		if err := s.turns.DeleteAllByTenant(tenantID); err != nil {
			return fmt.Errorf("clear tenant history: %w", err)
		}
		if err := s.history.DeleteTenantHistory(ctx, tenantID); err != nil {
			log.Printf("[chat] drop cached tenant history failed tenant=%s: %v", tenantID, err)
		}
	}
	return nil
}

func buildRAGMessages(question string, hits []vectorstore.ScoredChunk, history []ai.ChatMessage) []ai.ChatMessage {
	var excerpts strings.Builder
	if len(hits) == 0 {
		excerpts.WriteString("No relevant excerpts were found in the uploaded documents.")
	} else {
		excerpts.WriteString("Document excerpts:\n\n")
		for i, hit := range hits {
			fmt.Fprintf(&excerpts, "[%d] (source: %s)\n%s\n\n", i+1, hit.Payload.SourceFile, hit.Payload.Text)
		}
	}

	messages := make([]ai.ChatMessage, 0, 2+len(history))
	messages = append(messages, ai.ChatMessage{
		Role:    "system",
		Content: ragSystemPrompt + "\n\n" + strings.TrimSpace(excerpts.String()),
	})
	messages = append(messages, history...)
	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}

func turnsToMessages(turns []model.ChatTurn) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, 2*len(turns))
	for _, turn := range turns {
		messages = append(messages, ai.ChatMessage{Role: "user", Content: turn.Question})
		messages = append(messages, ai.ChatMessage{Role: "assistant", Content: turn.Answer})
	}
	return messages
}

func distinctSources(hits []vectorstore.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(hits))
	sources := make([]string, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.Payload.SourceFile]; ok {
			continue
		}
		seen[hit.Payload.SourceFile] = struct{}{}
		sources = append(sources, hit.Payload.SourceFile)
	}
	return sources
}
