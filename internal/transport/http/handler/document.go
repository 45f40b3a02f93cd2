package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"vextral/internal/app"
	"vextral/internal/transport/http/middleware"
	"vextral/internal/transport/http/response"
)

type DocumentHandler struct {
	uploads        *app.UploadService
	maxUploadBytes int64
}

func NewDocumentHandler(uploads *app.UploadService, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &DocumentHandler{uploads: uploads, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart form with "file". "replace=true" lets a
// re-upload of an existing filename swap the old document out.
func (h *DocumentHandler) Upload(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing tenant")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}
	if file.Filename == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing filename")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	replace := c.PostForm("replace") == "true" || c.Query("replace") == "true"

	result, err := h.uploads.Upload(c.Request.Context(), tenantID, file.Filename, data, replace)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing tenant")
		return
	}

	docs, err := h.uploads.List(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing tenant")
		return
	}

	filename := c.Param("filename")
	if filename == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing filename")
		return
	}

	if err := h.uploads.Delete(c.Request.Context(), tenantID, filename); err != nil {
		switch {
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "document not found")
		case errors.Is(err, app.ErrIndexUnavailable):
			response.Error(c, http.StatusServiceUnavailable, response.CodeIndexUnavailable, "vector index unavailable")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted": filename})
}

func writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrUnsupportedFormat):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFormat, err.Error())
	case errors.Is(err, app.ErrDuplicateFilename):
		response.Error(c, http.StatusConflict, response.CodeDuplicateFilename, err.Error())
	case errors.Is(err, app.ErrParseFailure):
		response.Error(c, http.StatusBadRequest, response.CodeParseFailure, err.Error())
	case errors.Is(err, app.ErrEmbeddingFailure):
		response.Error(c, http.StatusBadGateway, response.CodeEmbeddingFailure, "embedding failed")
	case errors.Is(err, app.ErrIndexUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeIndexUnavailable, "vector index unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
	}
}
