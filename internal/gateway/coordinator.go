package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/tidechat/tidechat/internal/auth"
	"github.com/tidechat/tidechat/internal/chat"
	"github.com/tidechat/tidechat/internal/domain"
	"github.com/tidechat/tidechat/internal/hub"
	"github.com/tidechat/tidechat/internal/registry"
	"github.com/tidechat/tidechat/pkg/log"
)

// Coordinator drives the connection state machine: authenticate,
// hydrate rooms, mark present, process actions, tear down on loss.
// It is the only component that talks to both the store side
// (chat.Service) and the fan-out side (hub.Hub); neither of those
// ever calls the other.
type Coordinator struct {
	resolver auth.Resolver
	chat     chat.Service
	registry *registry.Registry
	hub      *hub.Hub

	mu        sync.Mutex
	teardowns map[string]*sync.Once // connID -> teardown guard
}

func NewCoordinator(resolver auth.Resolver, chatSvc chat.Service, reg *registry.Registry, h *hub.Hub) *Coordinator {
	return &Coordinator{
		resolver:  resolver,
		chat:      chatSvc,
		registry:  reg,
		hub:       h,
		teardowns: make(map[string]*sync.Once),
	}
}

// Connect authenticates a fresh connection and brings it to the Active
// state: session registered, historical rooms joined, presence marked,
// connected ack delivered. On any failure no session remains.
func (co *Coordinator) Connect(ctx context.Context, client *hub.Client, credential string) error {
	principal, err := co.resolver.Verify(credential)
	if err != nil {
		return err
	}
	client.Principal = principal

	l := log.Ctx(ctx).With().
		Str(log.FieldConnID, client.ID).
		Str(log.FieldUserID, principal.UserID).
		Logger()

	first, err := co.registry.Register(client.ID, principal.UserID)
	if err != nil {
		return err
	}

	co.mu.Lock()
	co.teardowns[client.ID] = &sync.Once{}
	co.mu.Unlock()

	co.hub.Register(client)

	// Hydrate rooms for every conversation the user participates in.
	conversationIDs, err := co.chat.ConversationIDsForUser(ctx, principal.UserID)
	if err != nil {
		l.Error().Err(err).Msg("failed to load conversations at connect")
		co.Disconnect(client)
		co.hub.Unregister(client)
		return err
	}
	for _, conversationID := range conversationIDs {
		co.registry.JoinRoom(client.ID, conversationID)
	}

	if first {
		if _, err := co.chat.SetPresence(ctx, principal.UserID, true); err != nil {
			l.Warn().Err(err).Msg("failed to persist online presence")
		}
		event := &domain.OnlineStatusChangedEvent{
			Type:     domain.EventOnlineStatusChanged,
			UserID:   principal.UserID,
			IsOnline: true,
		}
		for _, conversationID := range conversationIDs {
			co.hub.BroadcastToRoom(conversationID, event, client.ID)
		}
	}

	co.hub.Unicast(client.ID, &domain.ConnectedEvent{
		Type:     domain.EventConnected,
		Message:  "connected",
		UserID:   principal.UserID,
		SocketID: client.ID,
	})

	l.Info().Int("conversations", len(conversationIDs)).Msg("session active")
	return nil
}

// Disconnect tears the session down. Safe to call multiple times;
// teardown runs exactly once per connection. Failures along the way are
// logged and never prevent the connection from fully closing.
func (co *Coordinator) Disconnect(client *hub.Client) {
	if client.Principal == nil {
		return
	}

	co.mu.Lock()
	once, ok := co.teardowns[client.ID]
	if ok {
		delete(co.teardowns, client.ID)
	}
	co.mu.Unlock()
	if !ok {
		return
	}

	once.Do(func() {
		ctx := context.Background()
		userID := client.Principal.UserID
		l := log.L().With().
			Str(log.FieldConnID, client.ID).
			Str(log.FieldUserID, userID).
			Logger()

		// Capture room membership before it is removed; the offline
		// presence event goes to these rooms.
		rooms := co.registry.RoomsOf(userID)
		typingIn := co.registry.ClearTyping(userID)

		_, last, ok := co.registry.Unregister(client.ID)
		if !ok {
			return
		}

		stopped := &domain.TypingEvent{
			Type:   domain.EventUserStoppedTyping,
			UserID: userID,
		}
		for _, conversationID := range typingIn {
			ev := *stopped
			ev.ConversationID = conversationID
			co.hub.BroadcastToRoom(conversationID, &ev, client.ID)
		}

		if last {
			lastSeen, err := co.chat.SetPresence(ctx, userID, false)
			if err != nil {
				l.Warn().Err(err).Msg("failed to persist offline presence")
			}
			event := &domain.OnlineStatusChangedEvent{
				Type:     domain.EventOnlineStatusChanged,
				UserID:   userID,
				IsOnline: false,
				LastSeen: lastSeen,
			}
			for _, conversationID := range rooms {
				co.hub.BroadcastToRoom(conversationID, event, client.ID)
			}
		}

		l.Info().Bool("last_session", last).Msg("session closed")
	})
}

// HandleAction dispatches one inbound frame. Every action isolates its
// own failure: errors become a caller-directed error event and never
// tear down the connection.
func (co *Coordinator) HandleAction(client *hub.Client, raw []byte) {
	if client.Principal == nil {
		return
	}

	var base domain.BaseAction
	if err := json.Unmarshal(raw, &base); err != nil {
		co.hub.Unicast(client.ID, domain.NewErrorEvent(domain.ErrCodeValidation, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.ActionJoinConversation:
		var action domain.JoinConversationAction
		if err := json.Unmarshal(raw, &action); err != nil || action.ConversationID == "" {
			co.sendError(client, "", domain.ErrCodeValidation, "conversationId is required")
			return
		}
		co.handleJoin(ctx, client, action.ConversationID)

	case domain.ActionLeaveConversation:
		var action domain.LeaveConversationAction
		if err := json.Unmarshal(raw, &action); err != nil || action.ConversationID == "" {
			co.sendError(client, "", domain.ErrCodeValidation, "conversationId is required")
			return
		}
		co.handleLeave(client, action.ConversationID)

	case domain.ActionSendMessage:
		var action domain.SendMessageAction
		if err := json.Unmarshal(raw, &action); err != nil {
			co.sendError(client, "", domain.ErrCodeValidation, "invalid sendMessage payload")
			return
		}
		co.handleSend(ctx, client, &action)

	case domain.ActionStartConversation:
		var action domain.StartConversationAction
		if err := json.Unmarshal(raw, &action); err != nil || action.RecipientID == "" {
			co.sendError(client, "", domain.ErrCodeValidation, "recipientId is required")
			return
		}
		co.handleStartConversation(ctx, client, action.RecipientID)

	case domain.ActionMarkAsRead:
		var action domain.MarkAsReadAction
		if err := json.Unmarshal(raw, &action); err != nil || action.ConversationID == "" {
			co.sendError(client, "", domain.ErrCodeValidation, "conversationId is required")
			return
		}
		co.handleMarkRead(ctx, client, action.ConversationID)

	case domain.ActionStartTyping, domain.ActionStopTyping:
		var action domain.TypingAction
		if err := json.Unmarshal(raw, &action); err != nil || action.ConversationID == "" {
			co.sendError(client, "", domain.ErrCodeValidation, "conversationId is required")
			return
		}
		co.handleTyping(client, action.ConversationID, base.Type == domain.ActionStartTyping)

	default:
		co.sendError(client, "", domain.ErrCodeValidation, "unknown action type: "+base.Type)
	}
}

func (co *Coordinator) handleJoin(ctx context.Context, client *hub.Client, conversationID string) {
	ok, err := co.chat.IsParticipant(ctx, conversationID, client.Principal.UserID)
	if err != nil {
		co.sendMappedError(client, conversationID, err)
		return
	}
	if !ok {
		co.sendError(client, conversationID, domain.ErrCodeAuthorization, "you are not a participant of this conversation")
		return
	}

	co.registry.JoinRoom(client.ID, conversationID)
	co.hub.Unicast(client.ID, &domain.ConversationJoinedEvent{
		Type:           domain.EventConversationJoined,
		ConversationID: conversationID,
		Message:        "joined conversation",
	})
}

func (co *Coordinator) handleLeave(client *hub.Client, conversationID string) {
	co.registry.LeaveRoom(client.ID, conversationID)
	co.hub.Unicast(client.ID, &domain.ConversationLeftEvent{
		Type:           domain.EventConversationLeft,
		ConversationID: conversationID,
		Message:        "left conversation",
	})
}

func (co *Coordinator) handleSend(ctx context.Context, client *hub.Client, action *domain.SendMessageAction) {
	hasConversation := action.ConversationID != ""
	hasRecipient := action.RecipientID != ""
	if hasConversation == hasRecipient {
		co.sendError(client, "", domain.ErrCodeValidation, "exactly one of conversationId or recipientId is required")
		return
	}
	if strings.TrimSpace(action.Content) == "" {
		co.sendError(client, action.ConversationID, domain.ErrCodeValidation, "content must not be empty")
		return
	}

	conversationID := action.ConversationID
	if hasRecipient {
		conv, created, err := co.chat.FindOrCreateConversation(ctx, client.Principal.UserID, action.RecipientID)
		if err != nil {
			co.sendMappedError(client, "", err)
			return
		}
		conversationID = conv.ID
		co.subscribeParticipants(conv, created, client.ID)
	}

	record, err := co.chat.SendMessage(ctx, client.Principal.UserID, conversationID, action.Content)
	if err != nil {
		co.sendMappedError(client, conversationID, err)
		return
	}

	co.hub.BroadcastToRoom(conversationID, &domain.NewMessageEvent{
		Type:    domain.EventNewMessage,
		Message: *record,
	}, "")
	co.hub.Unicast(client.ID, &domain.MessageSentEvent{
		Type:      domain.EventMessageSent,
		Message:   "message sent",
		MessageID: record.ID,
	})
}

func (co *Coordinator) handleStartConversation(ctx context.Context, client *hub.Client, recipientID string) {
	conv, created, err := co.chat.FindOrCreateConversation(ctx, client.Principal.UserID, recipientID)
	if err != nil {
		co.sendMappedError(client, "", err)
		return
	}

	co.subscribeParticipants(conv, created, client.ID)

	co.hub.Unicast(client.ID, &domain.ConversationStartedEvent{
		Type:           domain.EventConversationStarted,
		ConversationID: conv.ID,
		RecipientID:    recipientID,
		Message:        "conversation ready",
	})
}

func (co *Coordinator) handleMarkRead(ctx context.Context, client *hub.Client, conversationID string) {
	messageIDs, readAt, err := co.chat.MarkRead(ctx, conversationID, client.Principal.UserID)
	if err != nil {
		co.sendMappedError(client, conversationID, err)
		return
	}
	if len(messageIDs) == 0 {
		return
	}

	co.hub.BroadcastToRoom(conversationID, &domain.MessagesReadEvent{
		Type:           domain.EventMessagesRead,
		ConversationID: conversationID,
		UserID:         client.Principal.UserID,
		MessageIDs:     messageIDs,
		ReadAt:         readAt,
	}, client.ID)
}

func (co *Coordinator) handleTyping(client *hub.Client, conversationID string, start bool) {
	userID := client.Principal.UserID

	var changed bool
	eventType := domain.EventUserTyping
	if start {
		changed = co.registry.StartTyping(conversationID, userID)
	} else {
		changed = co.registry.StopTyping(conversationID, userID)
		eventType = domain.EventUserStoppedTyping
	}
	if !changed {
		return
	}

	co.hub.BroadcastToRoom(conversationID, &domain.TypingEvent{
		Type:           eventType,
		UserID:         userID,
		ConversationID: conversationID,
	}, client.ID)
}

// subscribeParticipants puts the live connections of a conversation's
// participants into its room. For a freshly created conversation every
// participant is subscribed so the first message reaches both sides;
// for an existing one only the caller needs healing.
func (co *Coordinator) subscribeParticipants(conv *domain.ConversationResponse, created bool, callerConnID string) {
	co.registry.JoinRoom(callerConnID, conv.ID)
	if !created {
		return
	}
	for _, participant := range conv.Participants {
		for _, connID := range co.registry.ConnectionsOfUser(participant.ID) {
			co.registry.JoinRoom(connID, conv.ID)
		}
	}
}

func (co *Coordinator) sendError(client *hub.Client, conversationID, code, message string) {
	event := domain.NewErrorEvent(code, message)
	event.ConversationID = conversationID
	co.hub.Unicast(client.ID, event)
}

func (co *Coordinator) sendMappedError(client *hub.Client, conversationID string, err error) {
	code := domain.ErrCodeInternal
	switch {
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrSelfConversation):
		code = domain.ErrCodeValidation
	case errors.Is(err, chat.ErrNotParticipant):
		code = domain.ErrCodeAuthorization
	case errors.Is(err, chat.ErrUserNotFound), errors.Is(err, chat.ErrConversationNotFound):
		code = domain.ErrCodeNotFound
	case errors.Is(err, registry.ErrDuplicateSession):
		code = domain.ErrCodeConflict
	}

	message := err.Error()
	if code == domain.ErrCodeInternal {
		log.L().Error().Err(err).
			Str(log.FieldConnID, client.ID).
			Str(log.FieldConversationID, conversationID).
			Msg("action failed")
		message = "internal error"
	}

	co.sendError(client, conversationID, code, message)
}
