package cache

import (
	"context"
	"errors"

	"github.com/tidechat/tidechat/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// MessageCache holds the hot head page of a conversation's history.
// Invalidated whenever a new message lands in the conversation.
type MessageCache interface {
	GetRecent(ctx context.Context, conversationID string) ([]domain.MessageRecord, error)
	SetRecent(ctx context.Context, conversationID string, records []domain.MessageRecord) error
	Invalidate(ctx context.Context, conversationID string) error
	Close() error
}
