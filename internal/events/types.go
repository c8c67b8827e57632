package events

// Realtime event names. Inbound events come from clients, outbound events are
// produced by the hub.
const (
	// inbound
	EventMessageSend = "message:send"
	EventPing        = "ping"

	// outbound
	EventConnectionAccepted = "connection:accepted"
	EventMessageReceive     = "message:receive"
	EventMessageError       = "message:error"
	EventUserJoined         = "user:joined"
	EventUserLeft           = "user:left"
	EventStatsUpdate        = "stats:update"
	EventPong               = "pong"
)

// Error codes carried by message:error.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeRateLimited    = "RATE_LIMITED"
	CodeStorageFailed  = "STORAGE_FAILED"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeInternal       = "INTERNAL_ERROR"
)

type MessageSendPayload struct {
	Content string `json:"content"`
}

type ConnectionAcceptedPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type MessageReceivePayload struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Username  string   `json:"username"`
	CreatedAt string   `json:"createdAt"`
	User      *UserRef `json:"user"`
}

// PresencePayload is shared by user:joined and user:left.
type PresencePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type StatsUpdatePayload struct {
	TotalMessages int64 `json:"totalMessages"`
}

type MessageErrorPayload struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}
