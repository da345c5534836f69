package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidechat/tidechat/internal/domain"
)

// GormConversationRepository implements ConversationRepository using GORM.
type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormConversationRepository) FindForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	var models []domain.ConversationModel
	err := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ?", userID).
		Preload("Participants").
		Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	conversations := make([]*domain.Conversation, len(models))
	for i := range models {
		conversations[i] = models[i].ToDomain()
	}
	return conversations, nil
}

func (r *GormConversationRepository) FindDirectBetween(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	var id string
	err := r.db.WithContext(ctx).
		Model(&domain.ConversationModel{}).
		Select("conversations.id").
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id IN ?", []string{userA, userB}).
		Group("conversations.id").
		Having("COUNT(DISTINCT participants.user_id) = 2").
		Having("(SELECT COUNT(*) FROM participants p2 WHERE p2.conversation_id = conversations.id) = 2").
		Limit(1).
		Scan(&id).Error
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrConversationNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *GormConversationRepository) Create(ctx context.Context, participantIDs []string) (*domain.Conversation, error) {
	model := domain.ConversationModel{ID: uuid.New().String()}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, userID := range participantIDs {
			p := domain.ParticipantModel{ConversationID: model.ID, UserID: userID}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, model.ID)
}

func (r *GormConversationRepository) UpdateLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.ConversationModel{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"last_message_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *GormConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ParticipantModel{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
