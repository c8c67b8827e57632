package handler

import (
	"net/http"
	"strconv"

	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	service *services.StatsService
}

func NewAnalyticsHandler(service *services.StatsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

func (h *AnalyticsHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.StatsResponse{
		TotalUsers:    stats.TotalUsers,
		TotalMessages: stats.TotalMessages,
	}))
}

// Messages lists recent history, newest first. A missing or unparsable limit
// falls back to the default.
func (h *AnalyticsHandler) Messages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := h.service.RecentMessages(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessageSlice(items)))
}
