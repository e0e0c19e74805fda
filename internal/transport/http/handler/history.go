package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/transport/http/response"
)

type HistoryService interface {
	History(ctx context.Context) ([]app.HistoryItem, error)
	Analytics(ctx context.Context) (*app.Analytics, error)
}

type HistoryHandler struct {
	history HistoryService
}

func NewHistoryHandler(history HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) History(c *gin.Context) {
	items, err := h.history.History(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, items)
}

func (h *HistoryHandler) Analytics(c *gin.Context) {
	stats, err := h.history.Analytics(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, stats)
}
