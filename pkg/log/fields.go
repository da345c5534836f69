package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Realtime
	FieldConnID         = "conn_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldEvent          = "event"
	FieldAction         = "action"

	// Service
	FieldService = "service"
)
