package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tidechat/tidechat/internal/cache"
	"github.com/tidechat/tidechat/internal/domain"
	"github.com/tidechat/tidechat/internal/repository"
	"github.com/tidechat/tidechat/pkg/log"
)

var (
	ErrEmptyContent         = errors.New("message content is empty")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
)

// DefaultHistoryLimit is the page size served from the cache.
const DefaultHistoryLimit = 50

type chatService struct {
	users repository.UserRepository
	convs repository.ConversationRepository
	msgs  repository.MessageRepository
	cache cache.MessageCache

	// Collapses concurrent find-or-create calls for the same pair, so
	// two simultaneous startConversation requests yield one conversation.
	pairGroup singleflight.Group
}

func NewService(
	users repository.UserRepository,
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	msgCache cache.MessageCache,
) Service {
	return &chatService{
		users: users,
		convs: convs,
		msgs:  msgs,
		cache: msgCache,
	}
}

func (s *chatService) SendMessage(ctx context.Context, authorID, conversationID, content string) (*domain.MessageRecord, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	ok, err := s.convs.IsParticipant(ctx, conversationID, authorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		AuthorID:       authorID,
		Content:        content,
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.convs.UpdateLastMessage(ctx, conversationID, msg.ID, msg.CreatedAt); err != nil {
		// The message is durable; a stale last-message pointer only
		// affects conversation list ordering.
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldConversationID, conversationID).
			Msg("failed to update last message pointer")
	}

	if err := s.cache.Invalidate(ctx, conversationID); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldConversationID, conversationID).
			Msg("failed to invalidate message cache")
	}

	author, err := s.users.GetByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	record := toRecord(msg, author.ToResponse())
	return &record, nil
}

func (s *chatService) FindOrCreateConversation(ctx context.Context, userID, recipientID string) (*domain.ConversationResponse, bool, error) {
	if userID == recipientID {
		return nil, false, ErrSelfConversation
	}

	if _, err := s.users.GetByID(ctx, recipientID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	type result struct {
		conv    *domain.Conversation
		created bool
	}

	key := pairKey(userID, recipientID)
	v, err, _ := s.pairGroup.Do(key, func() (interface{}, error) {
		conv, err := s.convs.FindDirectBetween(ctx, userID, recipientID)
		if err == nil {
			return result{conv: conv}, nil
		}
		if !errors.Is(err, repository.ErrConversationNotFound) {
			return nil, err
		}

		conv, err = s.convs.Create(ctx, []string{userID, recipientID})
		if err != nil {
			return nil, err
		}
		return result{conv: conv, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(result)
	resp, err := s.toConversationResponse(ctx, res.conv)
	if err != nil {
		return nil, false, err
	}
	return resp, res.created, nil
}

func (s *chatService) ConversationsForUser(ctx context.Context, userID string) ([]domain.ConversationResponse, error) {
	convs, err := s.convs.FindForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp, err := s.toConversationResponse(ctx, conv)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *resp)
	}
	return responses, nil
}

func (s *chatService) ConversationIDsForUser(ctx context.Context, userID string) ([]string, error) {
	convs, err := s.convs.FindForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(convs))
	for i, conv := range convs {
		ids[i] = conv.ID
	}
	return ids, nil
}

// UpdateConversation returns the current record unchanged. Conversation
// metadata is immutable; clients calling update get the existing state.
func (s *chatService) UpdateConversation(ctx context.Context, conversationID string) (*domain.ConversationResponse, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return s.toConversationResponse(ctx, conv)
}

func (s *chatService) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, time.Time, error) {
	ok, err := s.convs.IsParticipant(ctx, conversationID, readerID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !ok {
		return nil, time.Time{}, ErrNotParticipant
	}

	ids, err := s.msgs.FindUnreadIDs(ctx, conversationID, readerID)
	if err != nil {
		return nil, time.Time{}, err
	}

	readAt := time.Now().UTC()
	if len(ids) == 0 {
		return []string{}, readAt, nil
	}

	receipts := make([]domain.ReadReceipt, len(ids))
	for i, id := range ids {
		receipts[i] = domain.ReadReceipt{MessageID: id, UserID: readerID, ReadAt: readAt}
	}
	if err := s.msgs.CreateReceipts(ctx, receipts); err != nil {
		return nil, time.Time{}, err
	}

	if err := s.cache.Invalidate(ctx, conversationID); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldConversationID, conversationID).
			Msg("failed to invalidate message cache")
	}

	return ids, readAt, nil
}

func (s *chatService) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.convs.IsParticipant(ctx, conversationID, userID)
}

func (s *chatService) SetPresence(ctx context.Context, userID string, online bool) (*time.Time, error) {
	if online {
		return nil, s.users.SetPresence(ctx, userID, true, nil)
	}

	now := time.Now().UTC()
	if err := s.users.SetPresence(ctx, userID, false, &now); err != nil {
		return nil, err
	}
	return &now, nil
}

func (s *chatService) History(ctx context.Context, conversationID string, limit int, before time.Time) ([]domain.MessageRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	headPage := before.IsZero() && limit == DefaultHistoryLimit
	if headPage {
		if records, err := s.cache.GetRecent(ctx, conversationID); err == nil {
			return records, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Ctx(ctx).Warn().Err(err).Msg("message cache read failed")
		}
	}

	msgs, err := s.msgs.FindByConversation(ctx, conversationID, limit, before)
	if err != nil {
		return nil, err
	}

	authors := make(map[string]domain.UserResponse)
	records := make([]domain.MessageRecord, 0, len(msgs))
	for _, msg := range msgs {
		author, ok := authors[msg.AuthorID]
		if !ok {
			user, err := s.users.GetByID(ctx, msg.AuthorID)
			if err != nil {
				return nil, err
			}
			author = user.ToResponse()
			authors[msg.AuthorID] = author
		}
		records = append(records, toRecord(msg, author))
	}

	if headPage {
		if err := s.cache.SetRecent(ctx, conversationID, records); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("message cache write failed")
		}
	}

	return records, nil
}

func (s *chatService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *chatService) toConversationResponse(ctx context.Context, conv *domain.Conversation) (*domain.ConversationResponse, error) {
	participants := make([]domain.UserResponse, 0, len(conv.ParticipantIDs))
	for _, userID := range conv.ParticipantIDs {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		participants = append(participants, user.ToResponse())
	}

	return &domain.ConversationResponse{
		ID:            conv.ID,
		Participants:  participants,
		LastMessageID: conv.LastMessageID,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}, nil
}

func toRecord(msg *domain.Message, author domain.UserResponse) domain.MessageRecord {
	readBy := msg.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return domain.MessageRecord{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		AuthorID:       msg.AuthorID,
		Author:         author,
		Content:        msg.Content,
		ReadBy:         readBy,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
