package services

import (
	"context"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/repository"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 100
)

type Stats struct {
	TotalUsers    int64 `json:"totalUsers"`
	TotalMessages int64 `json:"totalMessages"`
}

// StatsService reads counts straight from the stores on every call.
type StatsService struct {
	users    repository.UserRepository
	messages repository.MessageRepository
}

func NewStatsService(users repository.UserRepository, messages repository.MessageRepository) *StatsService {
	return &StatsService{users: users, messages: messages}
}

func (s *StatsService) Stats(ctx context.Context) (Stats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	messages, err := s.messages.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalUsers: users, TotalMessages: messages}, nil
}

// RecentMessages returns history newest first. limit is clamped to
// 1..MaxRecentLimit; zero or negative means DefaultRecentLimit.
func (s *StatsService) RecentMessages(ctx context.Context, limit int) ([]message.WithAuthor, error) {
	return s.messages.Recent(ctx, ClampLimit(limit))
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
