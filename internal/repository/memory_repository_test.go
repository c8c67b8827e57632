package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/domain/user"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository_Uniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	alice := &user.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com"}
	require.NoError(t, repo.Create(ctx, alice))

	dupEmail := &user.User{ID: uuid.New(), Username: "alice2", Email: "alice@example.com"}
	assert.ErrorIs(t, repo.Create(ctx, dupEmail), pulse_errors.ErrAlreadyExists)

	dupName := &user.User{ID: uuid.New(), Username: "alice", Email: "other@example.com"}
	assert.ErrorIs(t, repo.Create(ctx, dupName), pulse_errors.ErrAlreadyExists)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMemoryUserRepository_ConcurrentDuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, &user.User{ID: uuid.New(), Username: "racer", Email: "race@example.com"})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}

func TestMemoryUserRepository_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	alice := user.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com"}
	bob := user.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com"}
	require.NoError(t, repo.Create(ctx, &alice))
	require.NoError(t, repo.Create(ctx, &bob))

	bob.Username = "alice"
	assert.ErrorIs(t, repo.UpdateUser(ctx, bob), pulse_errors.ErrAlreadyExists)

	bob.Username = "robert"
	require.NoError(t, repo.UpdateUser(ctx, bob))
	got, err := repo.GetUserByUsername(ctx, "robert")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)

	require.NoError(t, repo.DeleteUser(ctx, bob.ID))
	assert.ErrorIs(t, repo.DeleteUser(ctx, bob.ID), pulse_errors.ErrNotFound)
	_, err = repo.GetUserByID(ctx, bob.ID)
	assert.ErrorIs(t, err, pulse_errors.ErrNotFound)
}

func TestMemoryMessageRepository_RecentOrder(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserRepository()
	alice := user.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com"}
	require.NoError(t, users.Create(ctx, &alice))

	repo := NewMemoryMessageRepository(users)
	base := time.Now()
	for i, content := range []string{"one", "two", "three"} {
		require.NoError(t, repo.Append(ctx, &message.Message{
			ID:        uuid.New(),
			Content:   content,
			UserID:    uuid.NullUUID{UUID: alice.ID, Valid: true},
			Username:  alice.Username,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Content)
	assert.Equal(t, "two", recent[1].Content)
	require.NotNil(t, recent[0].Author)
	assert.Equal(t, "alice@example.com", recent[0].Author.Email)

	all, err := repo.Recent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
