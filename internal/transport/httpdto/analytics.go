package httpdto

import (
	"time"

	"pulse-chat/internal/domain/message"
)

type StatsResponse struct {
	TotalUsers    int64 `json:"totalUsers"`
	TotalMessages int64 `json:"totalMessages"`
}

// MessageAuthorDTO is null when the author account no longer exists.
type MessageAuthorDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type MessageDTO struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Username  string            `json:"username"`
	CreatedAt string            `json:"createdAt"`
	User      *MessageAuthorDTO `json:"user"`
}

func FromMessage(m message.WithAuthor) MessageDTO {
	dto := MessageDTO{
		ID:        m.ID.String(),
		Content:   m.Content,
		Username:  m.Username,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
	if m.Author != nil {
		dto.User = &MessageAuthorDTO{
			ID:       m.Author.ID.String(),
			Username: m.Author.Username,
			Email:    m.Author.Email,
		}
	}
	return dto
}

func FromMessageSlice(items []message.WithAuthor) []MessageDTO {
	dtos := make([]MessageDTO, len(items))
	for i, m := range items {
		dtos[i] = FromMessage(m)
	}
	return dtos
}
