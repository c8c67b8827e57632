package server

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for realtime events
type WebSocketLogger struct {
	logger *zap.Logger
}

// NewWebSocketLogger tags base with component=websocket. A nil base falls
// back to the global zap logger.
func NewWebSocketLogger(base *zap.Logger) *WebSocketLogger {
	if base == nil {
		base = zap.L()
	}
	return &WebSocketLogger{
		logger: base.With(zap.String("component", "websocket")),
	}
}

func (l *WebSocketLogger) fields(event string, userID uuid.UUID, sessionID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID.String()),
		zap.String("session_id", sessionID),
	}, extra...)
}

func (l *WebSocketLogger) Info(event string, userID uuid.UUID, sessionID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.fields(event, userID, sessionID, fields)...)
}

func (l *WebSocketLogger) Error(event string, userID uuid.UUID, sessionID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.fields(event, userID, sessionID, append(fields, zap.Error(err)))...)
}

func (l *WebSocketLogger) Warn(event string, userID uuid.UUID, sessionID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.fields(event, userID, sessionID, fields)...)
}
