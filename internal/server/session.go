package server

import (
	"time"

	"pulse-chat/internal/domain/user"

	"github.com/google/uuid"
)

const sendBufferSize = 256

// Session is the hub's record of one live connection. Only the hub loop
// writes to or closes send.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Username    string
	Email       string
	ConnectedAt time.Time

	send chan []byte
}

func NewSession(u user.User) *Session {
	return &Session{
		ID:          uuid.New(),
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		ConnectedAt: time.Now().UTC(),
		send:        make(chan []byte, sendBufferSize),
	}
}

// Outbound yields encoded frames for this session. It is closed when the hub
// drops the session.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

func (s *Session) Identity() user.Identity {
	return user.Identity{UserID: s.UserID, Username: s.Username}
}
