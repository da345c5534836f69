package cache

import (
	"context"

	"github.com/tidechat/tidechat/internal/domain"
)

// NoopMessageCache is used when redis is disabled; every read misses.
type NoopMessageCache struct{}

func NewNoopMessageCache() *NoopMessageCache { return &NoopMessageCache{} }

func (NoopMessageCache) GetRecent(context.Context, string) ([]domain.MessageRecord, error) {
	return nil, ErrCacheMiss
}

func (NoopMessageCache) SetRecent(context.Context, string, []domain.MessageRecord) error {
	return nil
}

func (NoopMessageCache) Invalidate(context.Context, string) error { return nil }

func (NoopMessageCache) Close() error { return nil }
