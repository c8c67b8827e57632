package handler

import (
	"net/http"

	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"
	"pulse-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps a service error onto the response envelope. Server side
// failures are logged and answered with a generic message.
func writeError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	message := err.Error()

	switch status {
	case http.StatusServiceUnavailable:
		logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
		message = "service temporarily unavailable, please retry"
	case http.StatusInternalServerError:
		logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
		message = "internal server error"
	}

	_ = c.Error(err)
	c.JSON(status, httpdto.NewErrorResponse(message, httpdto.CodeForStatus(status)))
}
