package domain

import "time"

// WebSocket event types to client.
const (
	EventConnected           = "connected"
	EventConversationJoined  = "conversationJoined"
	EventConversationLeft    = "conversationLeft"
	EventConversationStarted = "conversationStarted"
	EventNewMessage          = "newMessage"
	EventMessageSent         = "messageSent"
	EventMessagesRead        = "messagesRead"
	EventOnlineStatusChanged = "userOnlineStatusChanged"
	EventUserTyping          = "userTyping"
	EventUserStoppedTyping   = "userStoppedTyping"
	EventError               = "error"
)

// Error codes carried by ErrorEvent.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeAuthentication = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization  = "AUTHORIZATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

type ConnectedEvent struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	SocketID string `json:"socketId"`
}

type ConversationJoinedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type ConversationLeftEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type ConversationStartedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	RecipientID    string `json:"recipientId"`
	Message        string `json:"message"`
}

type NewMessageEvent struct {
	Type    string        `json:"type"`
	Message MessageRecord `json:"message"`
}

type MessageSentEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

type MessagesReadEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	MessageIDs     []string  `json:"messageIds"`
	ReadAt         time.Time `json:"readAt"`
}

type OnlineStatusChangedEvent struct {
	Type     string     `json:"type"`
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type TypingEvent struct {
	Type           string `json:"type"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type ErrorEvent struct {
	Type           string `json:"type"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// NewErrorEvent builds an error event addressed to a single caller.
func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{Type: EventError, Code: code, Message: message}
}
