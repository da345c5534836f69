package domain

import "time"

// GORM models. Domain structs stay free of ORM tags; the mappers below
// convert between the two, following the model/domain split used across
// the repositories.

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID           string     `gorm:"type:varchar(36);primaryKey"`
	Username     string     `gorm:"type:varchar(50);uniqueIndex;not null"`
	PasswordHash string     `gorm:"type:varchar(255);not null"`
	IsOnline     bool       `gorm:"not null;default:false"`
	LastSeen     *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		IsOnline:     m.IsOnline,
		LastSeen:     m.LastSeen,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		IsOnline:     u.IsOnline,
		LastSeen:     u.LastSeen,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// ConversationModel is the GORM model for the conversations table.
type ConversationModel struct {
	ID            string     `gorm:"type:varchar(36);primaryKey"`
	LastMessageID *string    `gorm:"type:varchar(36)"`
	LastMessageAt *time.Time `gorm:"index"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`

	Participants []ParticipantModel `gorm:"foreignKey:ConversationID"`
}

func (ConversationModel) TableName() string { return "conversations" }

func (m *ConversationModel) ToDomain() *Conversation {
	c := &Conversation{
		ID:            m.ID,
		LastMessageID: m.LastMessageID,
		LastMessageAt: m.LastMessageAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	for _, p := range m.Participants {
		c.ParticipantIDs = append(c.ParticipantIDs, p.UserID)
	}
	return c
}

// ParticipantModel is the GORM model for conversation membership.
type ParticipantModel struct {
	ConversationID string    `gorm:"type:varchar(36);primaryKey"`
	UserID         string    `gorm:"type:varchar(36);primaryKey;index"`
	JoinedAt       time.Time `gorm:"autoCreateTime"`
}

func (ParticipantModel) TableName() string { return "participants" }

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	ConversationID string    `gorm:"type:varchar(36);index;not null"`
	AuthorID       string    `gorm:"type:varchar(36);not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`

	Receipts []ReadReceiptModel `gorm:"foreignKey:MessageID"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		Content:        m.Content,
		ReadBy:         []string{},
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for _, receipt := range m.Receipts {
		msg.ReadBy = append(msg.ReadBy, receipt.UserID)
	}
	return msg
}

// ReadReceiptModel is the GORM model for read receipts.
type ReadReceiptModel struct {
	MessageID string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);primaryKey"`
	ReadAt    time.Time `gorm:"autoCreateTime"`
}

func (ReadReceiptModel) TableName() string { return "read_receipts" }

func (m *ReadReceiptModel) ToDomain() *ReadReceipt {
	return &ReadReceipt{
		MessageID: m.MessageID,
		UserID:    m.UserID,
		ReadAt:    m.ReadAt,
	}
}
