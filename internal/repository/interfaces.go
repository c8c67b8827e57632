package repository

import (
	"context"

	"github.com/google/uuid"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/domain/user"
)

// UserRepository is the credential store. Username and email uniqueness is
// enforced here; a losing concurrent insert reports ErrAlreadyExists.
type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetAllUsers(ctx context.Context, page, limit int) ([]user.User, int64, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int64, error)
}

// MessageRepository is the append-only message store.
type MessageRepository interface {
	Append(ctx context.Context, m *message.Message) error
	Recent(ctx context.Context, limit int) ([]message.WithAuthor, error)
	Count(ctx context.Context) (int64, error)
}
