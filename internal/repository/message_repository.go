package repository

import (
	"context"
	"database/sql"

	"pulse-chat/internal/domain/message"

	"github.com/google/uuid"
)

type PostgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Append(ctx context.Context, m *message.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, content, user_id, username, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Content, m.UserID, m.Username, m.CreatedAt)
	if err != nil {
		return storageError("append message", err)
	}
	return nil
}

// Recent returns up to limit messages, most recent first.
func (r *PostgresMessageRepository) Recent(ctx context.Context, limit int) ([]message.WithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.content, m.user_id, m.username, m.created_at, u.id, u.username, u.email
		 FROM messages m
		 LEFT JOIN users u ON u.id = m.user_id
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, storageError("recent messages", err)
	}
	defer rows.Close()

	result := make([]message.WithAuthor, 0, limit)
	for rows.Next() {
		var (
			item        message.WithAuthor
			authorID    uuid.NullUUID
			authorName  sql.NullString
			authorEmail sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Content, &item.UserID, &item.Username, &item.CreatedAt,
			&authorID, &authorName, &authorEmail); err != nil {
			return nil, storageError("scan message", err)
		}
		if authorID.Valid {
			item.Author = &message.Author{
				ID:       authorID.UUID,
				Username: authorName.String,
				Email:    authorEmail.String,
			}
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("recent messages", err)
	}
	return result, nil
}

func (r *PostgresMessageRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&total); err != nil {
		return 0, storageError("count messages", err)
	}
	return total, nil
}
