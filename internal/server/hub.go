package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/events"
	"pulse-chat/internal/redis"
	"pulse-chat/internal/services"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub is not running")

// MessageSender persists chat messages. *services.MessageService satisfies it.
type MessageSender interface {
	Send(ctx context.Context, id user.Identity, content string) (message.Message, error)
	Count(ctx context.Context) (int64, error)
}

// MessageLimiter is the per-user send quota. *redis.RateLimiter satisfies it.
type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID string) (*redis.RateLimitResult, error)
}

// delivery is a batch of frames for one session, or for every session when
// target is nil. Frames in a batch arrive in order. A non-nil total is
// followed by a stats:update frame built on the loop.
type delivery struct {
	target *Session
	frames [][]byte
	total  *int64
}

// Hub owns the session registry. Every registry read and write happens on
// the Run goroutine; other goroutines talk to it through channels.
type Hub struct {
	sessions   map[uuid.UUID]*Session
	register   chan *Session
	unregister chan *Session
	broadcast  chan delivery
	inspect    chan chan int
	done       chan struct{}

	// lastTotal is the highest message count broadcast so far. Only Run
	// touches it, so counts read concurrently never go backwards.
	lastTotal int64

	messages MessageSender
	limiter  MessageLimiter
	logger   *WebSocketLogger
}

// NewHub creates a hub. limiter may be nil.
func NewHub(messages MessageSender, limiter MessageLimiter, logger *WebSocketLogger) *Hub {
	if logger == nil {
		logger = NewWebSocketLogger(nil)
	}
	return &Hub{
		sessions:   make(map[uuid.UUID]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan delivery, 256),
		inspect:    make(chan chan int),
		done:       make(chan struct{}),
		messages:   messages,
		limiter:    limiter,
		logger:     logger,
	}
}

// Run processes hub events until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.handleRegister(s)

		case s := <-h.unregister:
			h.handleUnregister(s)

		case d := <-h.broadcast:
			h.handleDelivery(d)

		case reply := <-h.inspect:
			reply <- len(h.sessions)
		}
	}
}

// Register hands a session to the loop. It returns once the loop has taken
// it, so a later Unregister can never overtake it.
func (h *Hub) Register(ctx context.Context, s *Session) error {
	select {
	case h.register <- s:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes a session and returns once the loop has taken the
// request. Calling it more than once is harmless.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// SessionCount asks the loop how many sessions are registered.
func (h *Hub) SessionCount(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.inspect <- reply:
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Submit validates, persists and broadcasts one message from s. It runs on
// the caller's goroutine so a slow store only holds up this session. Any
// failure is reported to s alone and returned.
func (h *Hub) Submit(ctx context.Context, s *Session, content string) error {
	if _, err := services.ValidateContent(content); err != nil {
		h.replyError(ctx, s, err)
		return err
	}

	if h.limiter != nil {
		res, err := h.limiter.AllowMessage(ctx, s.UserID.String())
		if err != nil {
			h.logger.Warn("message rate limit check failed", s.UserID, s.ID.String(), zap.Error(err))
		} else if !res.Allowed {
			err := fmt.Errorf("too many messages, retry in %s: %w", res.ResetIn, pulse_errors.ErrRateLimited)
			h.replyError(ctx, s, err)
			return err
		}
	}

	m, err := h.messages.Send(ctx, s.Identity(), content)
	if err != nil {
		h.logger.Error("message persist failed", s.UserID, s.ID.String(), err)
		h.replyError(ctx, s, err)
		return err
	}

	receive, err := events.Encode(events.EventMessageReceive, messagePayload(m, s))
	if err != nil {
		return err
	}
	d := delivery{frames: [][]byte{receive}}

	if total, err := h.messages.Count(ctx); err != nil {
		h.logger.Warn("message count failed", s.UserID, s.ID.String(), zap.Error(err))
	} else {
		d.total = &total
	}

	return h.enqueue(ctx, d)
}

// SendTo queues a frame for a single session.
func (h *Hub) SendTo(ctx context.Context, s *Session, event string, data any) error {
	frame, err := events.Encode(event, data)
	if err != nil {
		return err
	}
	return h.enqueue(ctx, delivery{target: s, frames: [][]byte{frame}})
}

func (h *Hub) enqueue(ctx context.Context, d delivery) error {
	select {
	case h.broadcast <- d:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) replyError(ctx context.Context, s *Session, err error) {
	text := err.Error()
	if errors.Is(err, pulse_errors.ErrStorage) {
		text = "message could not be saved, please retry"
	}
	payload := events.MessageErrorPayload{
		Error:     text,
		Code:      errorCode(err),
		Retryable: pulse_errors.IsRetryable(err),
	}
	if sendErr := h.SendTo(ctx, s, events.EventMessageError, payload); sendErr != nil {
		h.logger.Warn("error reply not delivered", s.UserID, s.ID.String(), zap.Error(sendErr))
	}
}

func (h *Hub) handleRegister(s *Session) {
	h.sessions[s.ID] = s
	h.logger.Info("client connected", s.UserID, s.ID.String(), zap.Int("sessions", len(h.sessions)))

	if ack, err := events.Encode(events.EventConnectionAccepted, events.ConnectionAcceptedPayload{
		SessionID: s.ID.String(),
		UserID:    s.UserID.String(),
		Username:  s.Username,
	}); err == nil {
		h.deliver(s, ack)
	}

	joined, err := events.Encode(events.EventUserJoined, events.PresencePayload{
		Username: s.Username,
		Message:  s.Username + " joined the chat",
	})
	if err != nil {
		return
	}
	for id, other := range h.sessions {
		if id != s.ID {
			h.deliver(other, joined)
		}
	}
}

func (h *Hub) handleUnregister(s *Session) {
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	delete(h.sessions, s.ID)
	close(s.send)
	h.logger.Info("client disconnected", s.UserID, s.ID.String(),
		zap.Duration("connected_for", time.Since(s.ConnectedAt)),
		zap.Int("sessions", len(h.sessions)),
	)

	left, err := events.Encode(events.EventUserLeft, events.PresencePayload{
		Username: s.Username,
		Message:  s.Username + " left the chat",
	})
	if err != nil {
		return
	}
	for _, other := range h.sessions {
		h.deliver(other, left)
	}
}

func (h *Hub) handleDelivery(d delivery) {
	if d.target != nil {
		// The target may have disconnected since the frame was queued.
		if _, ok := h.sessions[d.target.ID]; !ok {
			return
		}
		for _, frame := range d.frames {
			h.deliver(d.target, frame)
		}
		return
	}

	frames := d.frames
	if d.total != nil {
		if stats, ok := h.statsFrame(*d.total); ok {
			frames = append(frames, stats)
		}
	}

	for _, s := range h.sessions {
		for _, frame := range frames {
			h.deliver(s, frame)
		}
	}
}

// statsFrame encodes the running total. A count read before a newer one was
// broadcast is raised to the newer value.
func (h *Hub) statsFrame(total int64) ([]byte, bool) {
	h.lastTotal = max(h.lastTotal, total)
	frame, err := events.Encode(events.EventStatsUpdate, events.StatsUpdatePayload{TotalMessages: h.lastTotal})
	return frame, err == nil
}

func (h *Hub) deliver(s *Session, frame []byte) {
	select {
	case s.send <- frame:
	default:
		h.logger.Warn("client send buffer full", s.UserID, s.ID.String())
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for id, s := range h.sessions {
		close(s.send)
		delete(h.sessions, id)
	}
	h.logger.Info("hub stopped", uuid.Nil, "")
}

func messagePayload(m message.Message, s *Session) events.MessageReceivePayload {
	return events.MessageReceivePayload{
		ID:        m.ID.String(),
		Content:   m.Content,
		Username:  m.Username,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		User: &events.UserRef{
			ID:       s.UserID.String(),
			Username: s.Username,
			Email:    s.Email,
		},
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, pulse_errors.ErrInvalidInput):
		return events.CodeInvalidMessage
	case errors.Is(err, pulse_errors.ErrRateLimited):
		return events.CodeRateLimited
	case errors.Is(err, pulse_errors.ErrStorage):
		return events.CodeStorageFailed
	default:
		return events.CodeInternal
	}
}
