package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/transport/http/response"
)

// DocumentService is the part of app.DocumentService the handlers use.
type DocumentService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*app.UploadResult, error)
	Delete(ctx context.Context, filename string) (int, error)
	List(ctx context.Context) ([]app.DocumentInfo, error)
}

type DocumentHandler struct {
	documents DocumentService
	maxBytes  int64
}

// NewDocumentHandler limits upload request bodies to maxBytes; zero means no limit.
func NewDocumentHandler(documents DocumentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxBytes: maxBytes}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		status, code := response.Classify(err)
		if status == http.StatusInternalServerError {
			status, code = http.StatusBadRequest, response.CodeBadRequest
		}
		response.Error(c, status, code, "multipart field 'file' is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		response.FromError(c, err)
		return
	}
	defer file.Close()

	res, err := h.documents.Upload(c.Request.Context(), header.Filename, file)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{
		"message": fmt.Sprintf("File '%s' processed and stored.", res.Filename),
		"chunks":  res.Chunks,
	})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	name := c.Param("filename")
	removed, err := h.documents.Delete(c.Request.Context(), name)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{
		"message":         fmt.Sprintf("Document '%s' and its embeddings were deleted.", name),
		"removed_entries": removed,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, docs)
}
