package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"threads/internal/models"
)

type ConversationRepository struct {
	db *DB
}

func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// PairKey normalizes an unordered pair of user ids so both orderings map to one key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// FindOrCreateDirect returns the 1:1 conversation between a and b, creating it
// if needed. created reports whether this call inserted the row. A concurrent
// insert for the same pair loses on the pair_key unique index and rereads.
func (r *ConversationRepository) FindOrCreateDirect(ctx context.Context, a, b string) (conv *models.Conversation, created bool, err error) {
	key := PairKey(a, b)

	id, err := r.findIDByPairKey(ctx, key)
	if err == nil {
		conv, err = r.FindByID(ctx, id)
		return conv, false, err
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	id, err = r.createDirect(ctx, key, a, b)
	if errors.Is(err, ErrDuplicate) {
		id, err = r.findIDByPairKey(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("rereading conversation after conflict: %w", err)
		}
		conv, err = r.FindByID(ctx, id)
		return conv, false, err
	}
	if err != nil {
		return nil, false, err
	}

	conv, err = r.FindByID(ctx, id)
	return conv, true, err
}

func (r *ConversationRepository) createDirect(ctx context.Context, key, a, b string) (string, error) {
	id, err := GenerateID("cnv")
	if err != nil {
		return "", fmt.Errorf("generating conversation ID: %w", err)
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("starting conversation transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, is_group, pair_key, created_at, updated_at) VALUES (?, 0, ?, ?, ?)`,
		id, key, now, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("creating conversation: %w", err)
	}

	for _, userID := range []string{a, b} {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
			id, userID, now,
		)
		if err != nil {
			return "", fmt.Errorf("adding conversation participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if IsUniqueConstraintError(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("committing conversation: %w", err)
	}

	return id, nil
}

func (r *ConversationRepository) findIDByPairKey(ctx context.Context, key string) (string, error) {
	var id string
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT id FROM conversations WHERE pair_key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying conversation by pair: %w", err)
	}
	return id, nil
}

const conversationColumns = `c.id, c.is_group, c.created_at, c.updated_at,
	m.id, m.sender_id, m.content, m.created_at, su.name, su.username, su.avatar_url`

const conversationJoins = `LEFT JOIN messages m ON m.id = c.latest_message_id
	LEFT JOIN users su ON su.id = m.sender_id`

func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	convs, err := r.list(ctx,
		`SELECT `+conversationColumns+` FROM conversations c `+conversationJoins+` WHERE c.id = ?`,
		id,
	)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrNotFound
	}
	return convs[0], nil
}

// ListForUser returns userID's conversations, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	convs, err := r.list(ctx,
		`SELECT `+conversationColumns+` FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = ?
		`+conversationJoins+`
		ORDER BY c.rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	models.SortConversations(convs)
	return convs, nil
}

func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking conversation membership: %w", err)
	}
	return count > 0, nil
}

// SetLatestMessage advances the conversation's latest message pointer. It never
// moves the pointer to a message older than the current one.
func (r *ConversationRepository) SetLatestMessage(ctx context.Context, conversationID, messageID string, createdAt time.Time) error {
	_, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE conversations
		SET latest_message_id = ?, latest_message_at = ?, updated_at = ?
		WHERE id = ? AND (latest_message_at IS NULL OR latest_message_at <= ?)`,
		messageID, createdAt.UTC(), time.Now().UTC(), conversationID, createdAt.UTC(),
	)
	if IsBusyError(err) {
		return fmt.Errorf("updating latest message: %w", ErrBusy)
	}
	if err != nil {
		return fmt.Errorf("updating latest message: %w", err)
	}
	return nil
}

// DirectPartnerIDs returns the ids of users userID already has a 1:1 conversation with.
func (r *ConversationRepository) DirectPartnerIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx,
		`SELECT other.user_id FROM conversation_participants me
		JOIN conversations c ON c.id = me.conversation_id AND c.is_group = 0
		JOIN conversation_participants other ON other.conversation_id = c.id AND other.user_id <> me.user_id
		WHERE me.user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation partners: %w", err)
	}
	defer rows.Close()

	partners := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation partner: %w", err)
		}
		partners[id] = true
	}
	return partners, rows.Err()
}

func (r *ConversationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Conversation, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]*models.Conversation, 0)
	byID := make(map[string]*models.Conversation)
	for rows.Next() {
		var c models.Conversation
		var (
			msgID, msgSender, msgContent sql.NullString
			msgCreatedAt                 sql.NullTime
			senderName, senderUsername   sql.NullString
			senderAvatar                 sql.NullString
		)

		err := rows.Scan(
			&c.ID, &c.IsGroup, &c.CreatedAt, &c.UpdatedAt,
			&msgID, &msgSender, &msgContent, &msgCreatedAt,
			&senderName, &senderUsername, &senderAvatar,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}

		if msgID.Valid {
			c.LatestMessage = &models.Message{
				ID:             msgID.String,
				ConversationID: c.ID,
				Sender: models.UserSummary{
					ID:        msgSender.String,
					Name:      senderName.String,
					Username:  senderUsername.String,
					AvatarURL: senderAvatar.String,
				},
				Content:   msgContent.String,
				CreatedAt: msgCreatedAt.Time,
			}
		}

		c.Participants = make([]models.UserSummary, 0, 2)
		convs = append(convs, &c)
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	if err := r.loadParticipants(ctx, byID); err != nil {
		return nil, err
	}

	return convs, nil
}

func (r *ConversationRepository) loadParticipants(ctx context.Context, byID map[string]*models.Conversation) error {
	if len(byID) == 0 {
		return nil
	}

	args := make([]any, 0, len(byID))
	for id := range byID {
		args = append(args, id)
	}

	rows, err := r.db.conn(ctx).QueryContext(ctx,
		`SELECT p.conversation_id, u.id, u.name, u.username, u.avatar_url
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id IN (`+placeholders(len(args))+`)
		ORDER BY p.rowid`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var conversationID string
		var u models.UserSummary
		var avatar sql.NullString
		if err := rows.Scan(&conversationID, &u.ID, &u.Name, &u.Username, &avatar); err != nil {
			return fmt.Errorf("scanning participant: %w", err)
		}
		u.AvatarURL = avatar.String
		if c, ok := byID[conversationID]; ok {
			c.Participants = append(c.Participants, u)
		}
	}

	return rows.Err()
}
