package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"vextral/internal/ai"
	"vextral/internal/app"
	"vextral/internal/transport/http/middleware"
	"vextral/internal/transport/http/response"
)

type ChatHandler struct {
	chat *app.ChatService
}

type AskRequest struct {
	Question   string `json:"question" binding:"required"`
	RAGMode    *bool  `json:"rag_mode"`
	SourceFile string `json:"source_file"`

	// RecentHistory is the caller's view of the conversation so far. Stored
	// history is written asynchronously, so the turn just shown to the user
	// may not have landed yet; sending it here keeps follow-ups coherent.
	RecentHistory []HistoryMessage `json:"recent_history"`
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewChatHandler(chat *app.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Ask answers a question. A source_file selects RAG over that document,
// rag_mode=true selects RAG across all of the tenant's documents, and a bare
// question goes to the general model.
func (h *ChatHandler) Ask(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing tenant")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if len(strings.TrimSpace(req.Question)) < 3 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "question must be at least 3 characters")
		return
	}

	var sourceFile *string
	if s := strings.TrimSpace(req.SourceFile); s != "" {
		sourceFile = &s
	}

	// A source file implies retrieval. Without one the question is general
	// chat unless the caller asks for cross-document retrieval explicitly.
	ragMode := sourceFile != nil
	if req.RAGMode != nil && *req.RAGMode {
		ragMode = true
	}

	recent := make([]ai.ChatMessage, 0, len(req.RecentHistory))
	for _, m := range req.RecentHistory {
		recent = append(recent, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}

	result, err := h.chat.Ask(c.Request.Context(), tenantID, req.Question, ragMode, sourceFile, recent)
	if err != nil {
		writeAskError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *ChatHandler) History(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing tenant")
		return
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	var sourceFile *string
	if s := strings.TrimSpace(c.Query("source_file")); s != "" {
		sourceFile = &s
	}

	turns, err := h.chat.History(c.Request.Context(), tenantID, sourceFile, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load history failed")
		return
	}
	response.OK(c, turns)
}

// ClearHistory deletes stored turns. "source_file" clears one document's
// thread, "general=true" clears the general thread, neither wipes the
// tenant's whole history.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing tenant")
		return
	}

	var sourceFile *string
	if s := strings.TrimSpace(c.Query("source_file")); s != "" {
		sourceFile = &s
	}
	generalOnly := c.Query("general") == "true"

	if err := h.chat.ClearHistory(c.Request.Context(), tenantID, sourceFile, generalOnly); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clear history failed")
		return
	}
	response.OK(c, gin.H{"cleared": true})
}

func writeAskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "document not found")
	case errors.Is(err, app.ErrEmbeddingFailure):
		response.Error(c, http.StatusBadGateway, response.CodeEmbeddingFailure,
			"Sorry, I could not process your question right now. Please try again.")
	case errors.Is(err, app.ErrIndexUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeIndexUnavailable,
			"Sorry, document search is temporarily unavailable. Please try again.")
	case errors.Is(err, app.ErrGenerationFailure):
		response.Error(c, http.StatusBadGateway, response.CodeGenerationFailure,
			"Sorry, I could not generate an answer right now. Please try again.")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer,
			"Sorry, something went wrong answering your question.")
	}
}
