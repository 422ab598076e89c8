// Package chat implements conversations and the message delivery pipeline.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"threads/internal/apperr"
	"threads/internal/constants"
	"threads/internal/db"
	"threads/internal/events"
	"threads/internal/metrics"
	"threads/internal/models"
)

type ConversationStore interface {
	FindOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, bool, error)
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	SetLatestMessage(ctx context.Context, conversationID, messageID string, createdAt time.Time) error
	DirectPartnerIDs(ctx context.Context, userID string) (map[string]bool, error)
}

type MessageStore interface {
	Create(ctx context.Context, conversationID, senderID, content string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID, beforeID string, limit int) ([]*models.Message, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	MutualFollows(ctx context.Context, userID string) ([]*models.User, error)
}

// Transactor runs fn atomically; store calls made with its ctx join the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	tx            Transactor
	conversations ConversationStore
	messages      MessageStore
	users         UserStore
	publisher     events.Publisher
	policy        *bluemonday.Policy
}

func NewService(tx Transactor, conversations ConversationStore, messages MessageStore, users UserStore, publisher events.Publisher) *Service {
	return &Service{
		tx:            tx,
		conversations: conversations,
		messages:      messages,
		users:         users,
		publisher:     publisher,
		policy:        bluemonday.StrictPolicy(),
	}
}

// AccessOrCreateConversation returns the 1:1 conversation between userID and
// otherID, creating it on first use. Both orderings yield the same conversation.
func (s *Service) AccessOrCreateConversation(ctx context.Context, userID, otherID string) (*models.Conversation, error) {
	if otherID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if otherID == userID {
		return nil, apperr.Validation("cannot start a conversation with yourself")
	}

	if _, err := s.users.FindByID(ctx, otherID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	conv, created, err := s.conversations.FindOrCreateDirect(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("accessing conversation: %w", err)
	}
	if created {
		metrics.ConversationsCreated.Inc()
		slog.Info("conversation created", "component", "chat", "conversation_id", conv.ID)
	}
	return conv, nil
}

// Member returns the conversation if userID participates in it, NotFound if it
// does not exist, Forbidden otherwise.
func (s *Service) Member(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("finding conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.Forbidden("You are not a participant in this conversation")
	}
	return conv, nil
}

// SendMessage persists the message, advances the conversation's latest
// message, then publishes it for every participant except the sender. The
// persisted message is returned to the sender directly.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID, content string) (*models.Message, error) {
	content = strings.TrimSpace(s.policy.Sanitize(content))
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > constants.MaxMessageContentLength {
		return nil, &apperr.Error{
			Kind:    apperr.KindValidation,
			Code:    constants.ErrCodeMessageTooLong,
			Message: fmt.Sprintf("content exceeds %d characters", constants.MaxMessageContentLength),
		}
	}
	if conversationID == "" {
		return nil, apperr.Validation("chatId is required")
	}

	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("finding conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(senderID) {
		return nil, apperr.Forbidden("You are not a participant in this conversation")
	}

	var msg *models.Message
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.messages.Create(ctx, conv.ID, senderID, content)
		if err != nil {
			return fmt.Errorf("persisting message: %w", err)
		}
		if err := s.conversations.SetLatestMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
			return fmt.Errorf("advancing latest message: %w", err)
		}
		return nil
	})
	if errors.Is(err, db.ErrBusy) {
		return nil, apperr.Upstream("Message store is busy, try again", err)
	}
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	recipients := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p.ID == senderID {
			msg.Sender = p
			continue
		}
		recipients = append(recipients, p.ID)
	}

	if len(recipients) > 0 {
		evt := events.MessageReceived{Message: *msg, RecipientIDs: recipients}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			slog.Error("error publishing message", "component", "chat", "message_id", msg.ID, "error", err)
		}
	}

	return msg, nil
}

// History returns a page of messages in persistence order for a participant.
func (s *Service) History(ctx context.Context, userID, conversationID, beforeID string, limit int) ([]*models.Message, error) {
	if _, err := s.Member(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByConversation(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

type Sidebar struct {
	Chats             []*models.Conversation `json:"chats"`
	FriendsToChatWith []models.UserSummary   `json:"friendsToChatWith"`
}

// Sidebar lists the user's conversations, most recent first, plus mutual
// follows the user has no conversation with yet.
func (s *Service) Sidebar(ctx context.Context, userID string) (*Sidebar, error) {
	chats, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	partners, err := s.conversations.DirectPartnerIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversation partners: %w", err)
	}

	mutuals, err := s.users.MutualFollows(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing mutual follows: %w", err)
	}

	friends := make([]models.UserSummary, 0, len(mutuals))
	for _, u := range mutuals {
		if !partners[u.ID] {
			friends = append(friends, u.Summary())
		}
	}

	models.SortConversations(chats)
	return &Sidebar{Chats: chats, FriendsToChatWith: friends}, nil
}
