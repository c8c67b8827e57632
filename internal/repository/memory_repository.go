package repository

import (
	"context"
	"sort"
	"sync"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/domain/user"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/google/uuid"
)

// MemoryUserRepository keeps users in process memory. It is used when no
// DATABASE_URL is configured and by tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]user.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uuid.UUID]user.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return pulse_errors.ErrAlreadyExists
	}
	if r.conflicts(u.ID, u.Username, u.Email) {
		return pulse_errors.ErrAlreadyExists
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepository) GetAllUsers(ctx context.Context, page, limit int) ([]user.User, int64, error) {
	page, limit = NormalizePage(page, limit)

	r.mu.RLock()
	all := make([]user.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, u)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := (page - 1) * limit
	if start >= len(all) {
		return []user.User{}, int64(len(all)), nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (r *MemoryUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return user.User{}, pulse_errors.ErrNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return r.find(func(u user.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return r.find(func(u user.User) bool { return u.Username == username })
}

func (r *MemoryUserRepository) UpdateUser(ctx context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; !ok {
		return pulse_errors.ErrNotFound
	}
	if r.conflicts(u.ID, u.Username, u.Email) {
		return pulse_errors.ErrAlreadyExists
	}
	r.users[u.ID] = u
	return nil
}

func (r *MemoryUserRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return pulse_errors.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

func (r *MemoryUserRepository) find(match func(user.User) bool) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			return u, nil
		}
	}
	return user.User{}, pulse_errors.ErrNotFound
}

// conflicts must be called with mu held.
func (r *MemoryUserRepository) conflicts(id uuid.UUID, username, email string) bool {
	for _, existing := range r.users {
		if existing.ID == id {
			continue
		}
		if existing.Username == username || existing.Email == email {
			return true
		}
	}
	return false
}

// MemoryMessageRepository is an append-only slice guarded by a mutex.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []message.Message
	users    UserRepository
}

// NewMemoryMessageRepository builds a message store. users is consulted by
// Recent to attach author details and may be nil.
func NewMemoryMessageRepository(users UserRepository) *MemoryMessageRepository {
	return &MemoryMessageRepository{users: users}
}

func (r *MemoryMessageRepository) Append(ctx context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *m)
	return nil
}

func (r *MemoryMessageRepository) Recent(ctx context.Context, limit int) ([]message.WithAuthor, error) {
	if limit <= 0 {
		return []message.WithAuthor{}, nil
	}
	r.mu.RLock()
	n := len(r.messages)
	if limit > n {
		limit = n
	}
	picked := make([]message.Message, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		picked = append(picked, r.messages[i])
	}
	r.mu.RUnlock()

	result := make([]message.WithAuthor, 0, len(picked))
	for _, m := range picked {
		item := message.WithAuthor{Message: m}
		if r.users != nil && m.UserID.Valid {
			if u, err := r.users.GetUserByID(ctx, m.UserID.UUID); err == nil {
				item.Author = &message.Author{ID: u.ID, Username: u.Username, Email: u.Email}
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func (r *MemoryMessageRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.messages)), nil
}
