package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/domain"
	"docqa/internal/transport/http/response"
)

// QueryService answers questions against the indexed documents.
type QueryService interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
	Ask(ctx context.Context, question string) (string, error)
}

type QueryHandler struct {
	query QueryService
}

type QuestionRequest struct {
	Question string `json:"question" binding:"required"`
}

type AskResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type QueryResponse struct {
	Question string             `json:"question"`
	Answer   string             `json:"answer"`
	Sources  []domain.SourceRef `json:"sources"`
}

func NewQueryHandler(query QueryService) *QueryHandler {
	return &QueryHandler{query: query}
}

func (h *QueryHandler) Ask(c *gin.Context) {
	question, ok := bindQuestion(c)
	if !ok {
		return
	}
	answer, err := h.query.Ask(c.Request.Context(), question)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, AskResponse{Question: question, Answer: answer})
}

func (h *QueryHandler) Query(c *gin.Context) {
	question, ok := bindQuestion(c)
	if !ok {
		return
	}
	answer, err := h.query.Answer(c.Request.Context(), question)
	if err != nil {
		response.FromError(c, err)
		return
	}
	sources := answer.Sources
	if sources == nil {
		sources = []domain.SourceRef{}
	}
	response.OK(c, QueryResponse{Question: question, Answer: answer.Answer, Sources: sources})
}

func bindQuestion(c *gin.Context) (string, bool) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload: question is required")
		return "", false
	}
	return req.Question, true
}
