package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/google/uuid"
)

// MaxContentLength is counted in runes after trimming.
const MaxContentLength = 1000

type MessageService struct {
	repo repository.MessageRepository
	now  func() time.Time
}

func NewMessageService(repo repository.MessageRepository) *MessageService {
	return &MessageService{repo: repo, now: time.Now}
}

func (s *MessageService) WithClock(now func() time.Time) *MessageService {
	s.now = now
	return s
}

// ValidateContent trims content and checks its length. It never touches the
// store, so the hub can reject bad input before any persistence attempt.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", fmt.Errorf("message content is empty: %w", pulse_errors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", fmt.Errorf("message exceeds %d characters: %w", MaxContentLength, pulse_errors.ErrInvalidInput)
	}
	return trimmed, nil
}

// Send validates and appends a message authored by id. The timestamp is
// assigned here; clients cannot supply one.
func (s *MessageService) Send(ctx context.Context, id user.Identity, content string) (message.Message, error) {
	trimmed, err := ValidateContent(content)
	if err != nil {
		return message.Message{}, err
	}

	m := message.Message{
		ID:        uuid.New(),
		Content:   trimmed,
		UserID:    uuid.NullUUID{UUID: id.UserID, Valid: true},
		Username:  id.Username,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Append(ctx, &m); err != nil {
		return message.Message{}, err
	}
	return m, nil
}

func (s *MessageService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
