package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tidechat/tidechat/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	model := domain.MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		AuthorID:       msg.AuthorID,
		Content:        msg.Content,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}

	msg.CreatedAt = model.CreatedAt
	msg.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormMessageRepository) FindByConversation(ctx context.Context, conversationID string, limit int, before time.Time) ([]*domain.Message, error) {
	q := r.db.WithContext(ctx).
		Preload("Receipts").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC")
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []domain.MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(models))
	for i := range models {
		messages[i] = models[i].ToDomain()
	}
	return messages, nil
}

func (r *GormMessageRepository) FindUnreadIDs(ctx context.Context, conversationID, readerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("conversation_id = ? AND author_id <> ?", conversationID, readerID).
		Where("NOT EXISTS (SELECT 1 FROM read_receipts WHERE read_receipts.message_id = messages.id AND read_receipts.user_id = ?)", readerID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateReceipts inserts receipts in one batch. Existing
// (message_id, user_id) pairs are skipped, so the call is idempotent.
func (r *GormMessageRepository) CreateReceipts(ctx context.Context, receipts []domain.ReadReceipt) error {
	if len(receipts) == 0 {
		return nil
	}

	models := make([]domain.ReadReceiptModel, len(receipts))
	for i, receipt := range receipts {
		models[i] = domain.ReadReceiptModel{
			MessageID: receipt.MessageID,
			UserID:    receipt.UserID,
			ReadAt:    receipt.ReadAt,
		}
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models).Error
}
