package server

import (
	"context"
	"errors"
	"net/http"

	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/middleware"
	"pulse-chat/internal/redis"
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenVerifier is satisfied by *services.AuthService.
type TokenVerifier interface {
	Verify(token string) (user.Identity, error)
}

// UserLookup is satisfied by *services.UserService.
type UserLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (user.User, error)
}

// ConnectLimiter is satisfied by *redis.RateLimiter.
type ConnectLimiter interface {
	AllowWebSocket(ctx context.Context, userID string) (*redis.RateLimitResult, error)
}

// WebSocketHandler authenticates and upgrades realtime connections.
type WebSocketHandler struct {
	hub      *Hub
	verifier TokenVerifier
	users    UserLookup
	limiter  ConnectLimiter
	upgrader websocket.Upgrader
	logger   *WebSocketLogger
}

// NewWebSocketHandler creates the /ws handler. limiter may be nil.
func NewWebSocketHandler(hub *Hub, verifier TokenVerifier, users UserLookup, limiter ConnectLimiter, allowedOrigin string, logger *WebSocketLogger) *WebSocketHandler {
	if logger == nil {
		logger = NewWebSocketLogger(nil)
	}
	return &WebSocketHandler{
		hub:      hub,
		verifier: verifier,
		users:    users,
		limiter:  limiter,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigin, origin)
			},
		},
	}
}

// Handle verifies the token and the user before upgrading. A rejected
// connection never reaches the hub.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	identity, err := h.verifier.Verify(h.extractToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("invalid or expired token", "UNAUTHORIZED"))
		return
	}

	u, err := h.users.Lookup(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, pulse_errors.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("user no longer exists", "UNAUTHORIZED"))
			return
		}
		h.logger.Error("websocket user lookup failed", identity.UserID, "", err)
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("service temporarily unavailable", "SERVICE_UNAVAILABLE"))
		return
	}

	if h.limiter != nil {
		res, err := h.limiter.AllowWebSocket(ctx, u.ID.String())
		if err != nil {
			h.logger.Warn("connection rate limit check failed", u.ID, "", zap.Error(err))
		} else {
			middleware.SetRateLimitHeaders(c, res)
			if !res.Allowed {
				h.logger.Warn("connection rate limit exceeded", u.ID, "")
				c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("too many connections", "RATE_LIMITED"))
				return
			}
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Error("websocket upgrade failed", u.ID, "", err)
		return
	}

	session := NewSession(u)
	if err := h.hub.Register(ctx, session); err != nil {
		h.logger.Error("hub register failed", u.ID, session.ID.String(), err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"))
		conn.Close()
		return
	}

	// The request context ends when this handler returns.
	NewClient(h.hub, conn, session, h.logger).Start(context.WithoutCancel(ctx))
}

func (h *WebSocketHandler) extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return middleware.ExtractBearer(c)
}
