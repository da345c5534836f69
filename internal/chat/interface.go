package chat

import (
	"context"
	"time"

	"github.com/tidechat/tidechat/internal/domain"
)

// Service exposes the store-facing chat operations. It owns persistence
// and caching; it never talks to the fan-out layer. The realtime
// coordinator is the only caller that combines both sides.
type Service interface {
	// SendMessage persists a message in a conversation the author
	// participates in and returns the full outbound record.
	SendMessage(ctx context.Context, authorID, conversationID, content string) (*domain.MessageRecord, error)

	// FindOrCreateConversation returns the pairwise conversation
	// between the two users, creating it when absent. The boolean
	// reports whether a new conversation was created.
	FindOrCreateConversation(ctx context.Context, userID, recipientID string) (*domain.ConversationResponse, bool, error)

	// ConversationsForUser lists the user's conversations, most
	// recently active first.
	ConversationsForUser(ctx context.Context, userID string) ([]domain.ConversationResponse, error)

	// ConversationIDsForUser returns just the ids, for room hydration
	// at connect time.
	ConversationIDsForUser(ctx context.Context, userID string) ([]string, error)

	// UpdateConversation is a documented no-op: it returns the current
	// record regardless of any proposed changes.
	UpdateConversation(ctx context.Context, conversationID string) (*domain.ConversationResponse, error)

	// MarkRead creates receipts for every message in the conversation
	// authored by someone else and not yet read by readerID. Duplicate
	// receipts are skipped; calling twice yields the same receipt set.
	MarkRead(ctx context.Context, conversationID, readerID string) (messageIDs []string, readAt time.Time, err error)

	// IsParticipant reports conversation membership.
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)

	// SetPresence persists the user's online flag. When going offline
	// the returned lastSeen carries the persisted timestamp.
	SetPresence(ctx context.Context, userID string, online bool) (lastSeen *time.Time, err error)

	// History returns up to limit messages, newest first, older than
	// before when non-zero.
	History(ctx context.Context, conversationID string, limit int, before time.Time) ([]domain.MessageRecord, error)

	// GetUser returns a user's public record.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}
