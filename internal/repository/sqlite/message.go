package sqlite

import (
	"context"
	"time"

	"github.com/rookgm/chatpesa/internal/models"
)

const (
	insertMessageQuery = `
						INSERT INTO messages (phone, direction, body, created_at)
						VALUES (?, ?, ?, ?)
						RETURNING id`

	selectMessagesByPhoneQuery = `
						SELECT id, phone, direction, body, created_at FROM messages
						WHERE phone = ?
						ORDER BY id`
)

// MessageRepository keeps chat history in sqlite
type MessageRepository struct {
	db  *DB
	now func() time.Time
}

// NewMessageRepository creates new MessageRepository instance
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db, now: time.Now}
}

// SaveMessage appends message to customer history, ID and CreatedAt are filled in
func (mr *MessageRepository) SaveMessage(ctx context.Context, msg *models.Message) error {
	createdAt := mr.now().UTC()
	err := mr.db.QueryRowContext(ctx, insertMessageQuery, msg.Phone, msg.Direction, msg.Body,
		createdAt.UnixNano()).Scan(&msg.ID)
	if err != nil {
		return err
	}

	msg.CreatedAt = createdAt
	return nil
}

// ListMessagesByPhone returns customer history, oldest first
func (mr *MessageRepository) ListMessagesByPhone(ctx context.Context, phone string) ([]models.Message, error) {
	rows, err := mr.db.QueryContext(ctx, selectMessagesByPhoneQuery, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}

	for rows.Next() {
		var (
			msg       models.Message
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.Phone, &msg.Direction, &msg.Body, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
