package message

import (
	"time"

	"github.com/google/uuid"
)

// Message represents the messages table. Rows are never updated.
type Message struct {
	ID        uuid.UUID
	Content   string
	UserID    uuid.NullUUID // NULL once the author account is deleted
	Username  string        // author name at creation time
	CreatedAt time.Time
}

// Author is the current view of a message's author, when it still exists.
type Author struct {
	ID       uuid.UUID
	Username string
	Email    string
}

// WithAuthor pairs a message with its author for history listings.
type WithAuthor struct {
	Message
	Author *Author
}
