package database

import (
	"context"
	"fmt"
	"time"

	"planora/internal/models"
)

func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ConversationID == "" {
		msg.ConversationID = models.ConversationID(msg.SenderID, msg.ReceiverID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO messages (conversation_id, sender_id, receiver_id, booking_id, text, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		msg.ConversationID,
		msg.SenderID,
		msg.ReceiverID,
		msg.BookingID,
		msg.Text,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// GetConversation returns the messages between two users, oldest first.
func (db *DB) GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender_id, receiver_id, booking_id, text, created_at
              FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, models.ConversationID(userA, userB))
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.BookingID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
