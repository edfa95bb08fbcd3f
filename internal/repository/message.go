package repository

import (
	"context"

	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/repository/postgres"
)

const (
	insertMessageQuery = `
						INSERT INTO messages (phone, direction, body)
						VALUES ($1, $2, $3)
						RETURNING id, created_at`

	selectMessagesByPhoneQuery = `
						SELECT id, phone, direction, body, created_at FROM messages
						WHERE phone = $1
						ORDER BY id`
)

// MessageRepository keeps chat history in postgres
type MessageRepository struct {
	db *postgres.DB
}

// NewMessageRepository creates new MessageRepository instance
func NewMessageRepository(db *postgres.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// SaveMessage appends message to customer history, ID and CreatedAt are filled in
func (mr *MessageRepository) SaveMessage(ctx context.Context, msg *models.Message) error {
	return mr.db.QueryRow(ctx, insertMessageQuery, msg.Phone, msg.Direction, msg.Body).
		Scan(&msg.ID, &msg.CreatedAt)
}

// ListMessagesByPhone returns customer history, oldest first
func (mr *MessageRepository) ListMessagesByPhone(ctx context.Context, phone string) ([]models.Message, error) {
	rows, err := mr.db.Query(ctx, selectMessagesByPhoneQuery, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}

	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.Phone, &msg.Direction, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
