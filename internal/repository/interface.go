package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tidechat/tidechat/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUsernameExists       = errors.New("username already exists")
	ErrConversationNotFound = errors.New("conversation not found")
)

// UserRepository is the durable store for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// SetPresence persists the online flag; lastSeen is written when
	// going offline.
	SetPresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error
}

// ConversationRepository is the durable store for conversations and
// their participants.
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// FindForUser lists the user's conversations, most recently active first.
	FindForUser(ctx context.Context, userID string) ([]*domain.Conversation, error)
	// FindDirectBetween returns the pairwise conversation with exactly
	// the two given participants, or ErrConversationNotFound.
	FindDirectBetween(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	Create(ctx context.Context, participantIDs []string) (*domain.Conversation, error)
	UpdateLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// MessageRepository is the durable store for messages and read receipts.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// FindByConversation returns up to limit messages, newest first,
	// older than before when it is non-zero.
	FindByConversation(ctx context.Context, conversationID string, limit int, before time.Time) ([]*domain.Message, error)
	// FindUnreadIDs returns ids of messages in the conversation that
	// were authored by someone other than readerID and have no receipt
	// from readerID yet, in creation order.
	FindUnreadIDs(ctx context.Context, conversationID, readerID string) ([]string, error)
	// CreateReceipts inserts receipts, silently skipping duplicates.
	CreateReceipts(ctx context.Context, receipts []domain.ReadReceipt) error
}
