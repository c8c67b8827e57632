package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/events"
	"pulse-chat/internal/redis"
	"pulse-chat/internal/repository"
	"pulse-chat/internal/services"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenMessageRepo struct {
	mu      sync.Mutex
	appends int
}

func (b *brokenMessageRepo) Append(ctx context.Context, m *message.Message) error {
	b.mu.Lock()
	b.appends++
	b.mu.Unlock()
	return fmt.Errorf("insert message: %w", pulse_errors.ErrStorage)
}

func (b *brokenMessageRepo) Recent(ctx context.Context, limit int) ([]message.WithAuthor, error) {
	return nil, pulse_errors.ErrStorage
}

func (b *brokenMessageRepo) Count(ctx context.Context) (int64, error) {
	return 0, pulse_errors.ErrStorage
}

type denyAllLimiter struct{}

func (denyAllLimiter) AllowMessage(ctx context.Context, userID string) (*redis.RateLimitResult, error) {
	return &redis.RateLimitResult{Allowed: false, Limit: 1, ResetIn: 30 * time.Second}, nil
}

func startHub(t *testing.T, repo repository.MessageRepository, limiter MessageLimiter) *Hub {
	t.Helper()
	hub := NewHub(services.NewMessageService(repo), limiter, NewWebSocketLogger(zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func newTestSession(username string) *Session {
	return NewSession(user.User{ID: uuid.New(), Username: username, Email: username + "@example.com"})
}

func connect(t *testing.T, hub *Hub, s *Session) {
	t.Helper()
	require.NoError(t, hub.Register(context.Background(), s))
	env := nextFrame(t, s)
	require.Equal(t, events.EventConnectionAccepted, env.Event)
}

func nextFrame(t *testing.T, s *Session) events.Envelope {
	t.Helper()
	select {
	case frame, ok := <-s.Outbound():
		require.True(t, ok, "outbound closed")
		env, err := events.Decode(frame)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for %s", s.Username)
		return events.Envelope{}
	}
}

func decodeData[T any](t *testing.T, env events.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHub_ConnectAnnouncesToOthers(t *testing.T) {
	hub := startHub(t, repository.NewMemoryMessageRepository(nil), nil)
	a := newTestSession("alice")
	b := newTestSession("bob")

	connect(t, hub, a)
	connect(t, hub, b)

	env := nextFrame(t, a)
	assert.Equal(t, events.EventUserJoined, env.Event)
	p := decodeData[events.PresencePayload](t, env)
	assert.Equal(t, "bob", p.Username)
	assert.NotEmpty(t, p.Message)

	assert.Empty(t, b.send, "a new session is not told about itself")

	n, err := hub.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHub_SendBroadcastsToEveryone(t *testing.T) {
	repo := repository.NewMemoryMessageRepository(nil)
	hub := startHub(t, repo, nil)
	a := newTestSession("A")
	b := newTestSession("B")
	connect(t, hub, a)
	connect(t, hub, b)
	nextFrame(t, a) // user:joined B

	require.NoError(t, hub.Submit(context.Background(), a, "hi"))

	for _, s := range []*Session{a, b} {
		env := nextFrame(t, s)
		require.Equal(t, events.EventMessageReceive, env.Event)
		msg := decodeData[events.MessageReceivePayload](t, env)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "A", msg.Username)
		require.NotNil(t, msg.User)
		assert.Equal(t, a.UserID.String(), msg.User.ID)

		env = nextFrame(t, s)
		require.Equal(t, events.EventStatsUpdate, env.Event)
		stats := decodeData[events.StatsUpdatePayload](t, env)
		assert.EqualValues(t, 1, stats.TotalMessages)
	}

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestHub_StorageFailureOnlyReachesSender(t *testing.T) {
	repo := &brokenMessageRepo{}
	hub := startHub(t, repo, nil)
	a := newTestSession("alice")
	b := newTestSession("bob")
	connect(t, hub, a)
	connect(t, hub, b)
	nextFrame(t, a)

	err := hub.Submit(context.Background(), a, "hi")
	require.ErrorIs(t, err, pulse_errors.ErrStorage)

	env := nextFrame(t, a)
	require.Equal(t, events.EventMessageError, env.Event)
	p := decodeData[events.MessageErrorPayload](t, env)
	assert.Equal(t, events.CodeStorageFailed, p.Code)
	assert.True(t, p.Retryable)

	assert.Empty(t, b.send)
	assert.Equal(t, 1, repo.appends)

	// The session survives and can keep submitting.
	n, err := hub.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHub_InvalidContentNeverPersisted(t *testing.T) {
	repo := &brokenMessageRepo{}
	hub := startHub(t, repo, nil)
	a := newTestSession("alice")
	connect(t, hub, a)

	for _, content := range []string{"", "   ", string(make([]rune, services.MaxContentLength+1))} {
		err := hub.Submit(context.Background(), a, content)
		require.ErrorIs(t, err, pulse_errors.ErrInvalidInput)

		env := nextFrame(t, a)
		require.Equal(t, events.EventMessageError, env.Event)
		p := decodeData[events.MessageErrorPayload](t, env)
		assert.Equal(t, events.CodeInvalidMessage, p.Code)
		assert.False(t, p.Retryable)
	}
	assert.Zero(t, repo.appends)
}

func TestHub_RateLimitedMessage(t *testing.T) {
	repo := repository.NewMemoryMessageRepository(nil)
	hub := startHub(t, repo, denyAllLimiter{})
	a := newTestSession("alice")
	connect(t, hub, a)

	err := hub.Submit(context.Background(), a, "hi")
	require.ErrorIs(t, err, pulse_errors.ErrRateLimited)

	env := nextFrame(t, a)
	p := decodeData[events.MessageErrorPayload](t, env)
	assert.Equal(t, events.CodeRateLimited, p.Code)
	assert.True(t, p.Retryable)

	n, _ := repo.Count(context.Background())
	assert.Zero(t, n)
}

func TestHub_DisconnectIsIdempotent(t *testing.T) {
	hub := startHub(t, repository.NewMemoryMessageRepository(nil), nil)
	a := newTestSession("alice")
	b := newTestSession("bob")
	connect(t, hub, a)
	connect(t, hub, b)
	nextFrame(t, a)

	hub.Unregister(b)
	hub.Unregister(b)

	n, err := hub.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	env := nextFrame(t, a)
	require.Equal(t, events.EventUserLeft, env.Event)
	assert.Equal(t, "bob", decodeData[events.PresencePayload](t, env).Username)
	assert.Empty(t, a.send, "exactly one user:left")

	_, ok := <-b.Outbound()
	assert.False(t, ok, "removed session outbound is closed")
}

func TestHub_PerSenderOrderPreserved(t *testing.T) {
	hub := startHub(t, repository.NewMemoryMessageRepository(nil), nil)
	const senders, perSender = 3, 20

	sessions := make([]*Session, senders)
	for i := range sessions {
		sessions[i] = newTestSession(fmt.Sprintf("user%d", i))
		connect(t, hub, sessions[i])
	}
	// Drain the join announcements.
	for i := range sessions {
		for j := 0; j < senders-1-i; j++ {
			nextFrame(t, sessions[i])
		}
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			for k := 0; k < perSender; k++ {
				assert.NoError(t, hub.Submit(context.Background(), s, fmt.Sprintf("%d", k)))
			}
		}(s)
	}
	wg.Wait()

	for _, receiver := range sessions {
		next := map[string]int{}
		got := 0
		for got < senders*perSender {
			env := nextFrame(t, receiver)
			if env.Event != events.EventMessageReceive {
				continue
			}
			msg := decodeData[events.MessageReceivePayload](t, env)
			assert.Equal(t, fmt.Sprintf("%d", next[msg.Username]), msg.Content, "order from %s", msg.Username)
			next[msg.Username]++
			got++
		}
	}
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	hub := NewHub(services.NewMessageService(repository.NewMemoryMessageRepository(nil)), nil, NewWebSocketLogger(zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	a := newTestSession("alice")
	connect(t, hub, a)

	cancel()
	<-done

	_, ok := <-a.Outbound()
	assert.False(t, ok)
	assert.ErrorIs(t, hub.Register(context.Background(), newTestSession("late")), ErrHubClosed)
	hub.Unregister(a)
}

// stallingCountRepo reads the count on its first Count call, then waits for
// release before returning it.
type stallingCountRepo struct {
	repository.MessageRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *stallingCountRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.MessageRepository.Count(ctx)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return n, err
}

func TestHub_StatsTotalNeverGoesBackwards(t *testing.T) {
	repo := &stallingCountRepo{
		MessageRepository: repository.NewMemoryMessageRepository(nil),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	hub := startHub(t, repo, nil)
	observer := newTestSession("observer")
	a := newTestSession("alice")
	b := newTestSession("bob")
	connect(t, hub, observer)
	connect(t, hub, a)
	connect(t, hub, b)
	nextFrame(t, observer) // user:joined alice
	nextFrame(t, observer) // user:joined bob

	firstDone := make(chan error, 1)
	go func() { firstDone <- hub.Submit(context.Background(), a, "first") }()
	<-repo.entered

	require.NoError(t, hub.Submit(context.Background(), b, "second"))
	close(repo.release)
	require.NoError(t, <-firstDone)

	var totals []int64
	for len(totals) < 2 {
		env := nextFrame(t, observer)
		if env.Event == events.EventStatsUpdate {
			totals = append(totals, decodeData[events.StatsUpdatePayload](t, env).TotalMessages)
		}
	}
	assert.Equal(t, []int64{2, 2}, totals)
}
