package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pulse-chat/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	frameTimeout   = 10 * time.Second
)

// Per-connection limits per minute. These guard the process even when the
// Redis limiter is disabled.
type RateLimits struct {
	MaxMessages int
	MaxPings    int
}

var DefaultRateLimits = RateLimits{
	MaxMessages: 120,
	MaxPings:    60,
}

// ClientRateLimiter refills a fixed token budget every minute.
type ClientRateLimiter struct {
	limits        RateLimits
	messageTokens int
	pingTokens    int
	lastRefill    time.Time
	now           func() time.Time
	mu            sync.Mutex
}

func NewClientRateLimiter(limits RateLimits) *ClientRateLimiter {
	return &ClientRateLimiter{
		limits:        limits,
		messageTokens: limits.MaxMessages,
		pingTokens:    limits.MaxPings,
		lastRefill:    time.Now(),
		now:           time.Now,
	}
}

func (rl *ClientRateLimiter) Allow(event string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.messageTokens = rl.limits.MaxMessages
		rl.pingTokens = rl.limits.MaxPings
		rl.lastRefill = now
	}

	switch event {
	case events.EventMessageSend:
		if rl.messageTokens > 0 {
			rl.messageTokens--
			return true
		}
	case events.EventPing:
		if rl.pingTokens > 0 {
			rl.pingTokens--
			return true
		}
	}
	return false
}

// Client pumps frames between one websocket connection and the hub.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	session     *Session
	rateLimiter *ClientRateLimiter
	logger      *WebSocketLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, session *Session, logger *WebSocketLogger) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		session:     session,
		rateLimiter: NewClientRateLimiter(DefaultRateLimits),
		logger:      logger,
	}
}

// Start launches the read and write pumps. ctx must outlive the HTTP
// handler that performed the upgrade.
func (c *Client) Start(ctx context.Context) {
	go c.writePump()
	go c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c.session)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.session.UserID, c.session.ID.String(), err)
			}
			return
		}

		frameCtx, cancel := context.WithTimeout(ctx, frameTimeout)
		err = c.handleFrame(frameCtx, frame)
		cancel()
		if err != nil {
			c.logger.Warn("websocket handle frame failed", c.session.UserID, c.session.ID.String(), zap.Error(err))
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, frame []byte) error {
	env, err := events.Decode(frame)
	if err != nil {
		return c.reject(ctx, "malformed frame", events.CodeInvalidMessage)
	}

	switch env.Event {
	case events.EventMessageSend, events.EventPing:
	default:
		return c.reject(ctx, "unknown event "+env.Event, events.CodeUnknownEvent)
	}

	if !c.rateLimiter.Allow(env.Event) {
		c.logger.Warn("rate limit exceeded", c.session.UserID, c.session.ID.String(), zap.String("msg_type", env.Event))
		return c.hub.SendTo(ctx, c.session, events.EventMessageError, events.MessageErrorPayload{
			Error:     "too many requests",
			Code:      events.CodeRateLimited,
			Retryable: true,
		})
	}

	switch env.Event {
	case events.EventMessageSend:
		var payload events.MessageSendPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return c.reject(ctx, "malformed message payload", events.CodeInvalidMessage)
		}
		return c.hub.Submit(ctx, c.session, payload.Content)
	default:
		return c.hub.SendTo(ctx, c.session, events.EventPong, nil)
	}
}

func (c *Client) reject(ctx context.Context, reason, code string) error {
	return c.hub.SendTo(ctx, c.session, events.EventMessageError, events.MessageErrorPayload{
		Error: reason,
		Code:  code,
	})
}

// writePump writes one frame per websocket message so each frame parses as
// a standalone JSON document on the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
