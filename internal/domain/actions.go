package domain

// WebSocket action types from client.
const (
	ActionJoinConversation  = "joinConversation"
	ActionLeaveConversation = "leaveConversation"
	ActionSendMessage       = "sendMessage"
	ActionStartConversation = "startConversation"
	ActionMarkAsRead        = "markAsRead"
	ActionStartTyping       = "startTyping"
	ActionStopTyping        = "stopTyping"
)

// BaseAction carries the discriminator for all inbound frames.
type BaseAction struct {
	Type string `json:"type"`
}

type JoinConversationAction struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

type LeaveConversationAction struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// SendMessageAction requires exactly one of ConversationID/RecipientID.
type SendMessageAction struct {
	Type           string `json:"type"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
	RecipientID    string `json:"recipientId,omitempty"`
}

type StartConversationAction struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipientId"`
}

type MarkAsReadAction struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

type TypingAction struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}
