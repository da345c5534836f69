package domain

import "time"

// Conversation is a persisted thread between two or more participants.
// The denormalized last-message pointer orders conversation lists.
type Conversation struct {
	ID             string
	ParticipantIDs []string
	LastMessageID  *string
	LastMessageAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConversationResponse is the public view of a conversation.
type ConversationResponse struct {
	ID            string         `json:"id"`
	Participants  []UserResponse `json:"participants"`
	LastMessageID *string        `json:"lastMessageId,omitempty"`
	LastMessageAt *time.Time     `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Message is a persisted chat message. ReadBy is populated when the
// store fetches receipts alongside the message.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string
	Content        string
	ReadBy         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MessageRecord is the full outbound view of a message: the record
// itself plus author info and a read-receipt summary.
type MessageRecord struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	AuthorID       string       `json:"authorId"`
	Author         UserResponse `json:"author"`
	Content        string       `json:"content"`
	ReadBy         []string     `json:"readBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// ReadReceipt records that a user has seen a message. Unique per
// (MessageID, UserID); duplicate creation is a no-op.
type ReadReceipt struct {
	MessageID string
	UserID    string
	ReadAt    time.Time
}
