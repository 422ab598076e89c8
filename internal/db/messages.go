package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"threads/internal/constants"
	"threads/internal/models"
)

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	id, err := GenerateID("msg")
	if err != nil {
		return nil, fmt.Errorf("generating message ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, conversationID, senderID, content, now,
	)
	if IsBusyError(err) {
		return nil, fmt.Errorf("creating message: %w", ErrBusy)
	}
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	return &models.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         models.UserSummary{ID: senderID},
		Content:        content,
		CreatedAt:      now,
	}, nil
}

// ListByConversation returns up to limit messages older than beforeID (or the
// newest page when beforeID is empty), in persistence order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID, beforeID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > constants.MessageHistoryMaxLimit {
		limit = 50
	}

	query := `SELECT m.id, m.conversation_id, m.sender_id, u.name, u.username, u.avatar_url, m.content, m.created_at
		FROM messages m
		LEFT JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = ?`
	args := []any{conversationID}

	if beforeID != "" {
		query += ` AND m.rowid < (SELECT rowid FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += ` ORDER BY m.rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, u.name, u.username, u.avatar_url, m.content, m.created_at
		FROM messages m
		LEFT JOIN users u ON m.sender_id = u.id
		WHERE m.id = ?`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return m, nil
}

func scanMessage(s rowScanner) (*models.Message, error) {
	var m models.Message
	var name, username, avatar sql.NullString

	err := s.Scan(&m.ID, &m.ConversationID, &m.Sender.ID, &name, &username, &avatar, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Sender.Name = name.String
	m.Sender.Username = username.String
	m.Sender.AvatarURL = avatar.String
	return &m, nil
}
