package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tidechat/tidechat/internal/auth"
	"github.com/tidechat/tidechat/internal/chat"
	"github.com/tidechat/tidechat/internal/config"
	"github.com/tidechat/tidechat/internal/domain"
	"github.com/tidechat/tidechat/internal/hub"
	"github.com/tidechat/tidechat/internal/registry"
)

// staticResolver resolves fixed credentials to principals.
type staticResolver map[string]*domain.Principal

func (r staticResolver) Verify(credential string) (*domain.Principal, error) {
	principal, ok := r[credential]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return principal, nil
}

// fakeChat is an in-memory chat.Service. Conversations are direct
// pairs; unread message ids are seeded per (conversation, reader) and
// consumed by the first MarkRead, which mirrors receipt idempotence.
type fakeChat struct {
	mu           sync.Mutex
	participants map[string][]string // conversationID -> userIDs
	unread       map[string][]string // conversationID|readerID -> messageIDs
	createCalls  int
	convSeq      int
	msgSeq       int
	presenceLog  []string // "userID:online" entries in order
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		participants: make(map[string][]string),
		unread:       make(map[string][]string),
	}
}

func (f *fakeChat) addConversation(conversationID string, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[conversationID] = userIDs
}

func (f *fakeChat) seedUnread(conversationID, readerID string, messageIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[conversationID+"|"+readerID] = messageIDs
}

func (f *fakeChat) conversationResponse(conversationID string) *domain.ConversationResponse {
	resp := &domain.ConversationResponse{ID: conversationID}
	for _, userID := range f.participants[conversationID] {
		resp.Participants = append(resp.Participants, domain.UserResponse{ID: userID, Username: userID})
	}
	return resp
}

func (f *fakeChat) SendMessage(ctx context.Context, authorID, conversationID, content string) (*domain.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	userIDs, ok := f.participants[conversationID]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	member := false
	for _, userID := range userIDs {
		if userID == authorID {
			member = true
		}
	}
	if !member {
		return nil, chat.ErrNotParticipant
	}

	f.msgSeq++
	return &domain.MessageRecord{
		ID:             fmt.Sprintf("msg-%d", f.msgSeq),
		ConversationID: conversationID,
		AuthorID:       authorID,
		Author:         domain.UserResponse{ID: authorID, Username: authorID},
		Content:        content,
		ReadBy:         []string{},
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeChat) FindOrCreateConversation(ctx context.Context, userID, recipientID string) (*domain.ConversationResponse, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if userID == recipientID {
		return nil, false, chat.ErrSelfConversation
	}
	for conversationID, userIDs := range f.participants {
		if len(userIDs) == 2 &&
			((userIDs[0] == userID && userIDs[1] == recipientID) ||
				(userIDs[0] == recipientID && userIDs[1] == userID)) {
			return f.conversationResponse(conversationID), false, nil
		}
	}

	f.createCalls++
	f.convSeq++
	conversationID := fmt.Sprintf("conv-new-%d", f.convSeq)
	f.participants[conversationID] = []string{userID, recipientID}
	return f.conversationResponse(conversationID), true, nil
}

func (f *fakeChat) ConversationsForUser(ctx context.Context, userID string) ([]domain.ConversationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.ConversationResponse
	for conversationID, userIDs := range f.participants {
		for _, id := range userIDs {
			if id == userID {
				out = append(out, *f.conversationResponse(conversationID))
			}
		}
	}
	return out, nil
}

func (f *fakeChat) ConversationIDsForUser(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for conversationID, userIDs := range f.participants {
		for _, id := range userIDs {
			if id == userID {
				ids = append(ids, conversationID)
			}
		}
	}
	return ids, nil
}

func (f *fakeChat) UpdateConversation(ctx context.Context, conversationID string) (*domain.ConversationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.participants[conversationID]; !ok {
		return nil, chat.ErrConversationNotFound
	}
	return f.conversationResponse(conversationID), nil
}

func (f *fakeChat) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.participants[conversationID]; !ok {
		return nil, time.Time{}, chat.ErrConversationNotFound
	}
	key := conversationID + "|" + readerID
	ids := f.unread[key]
	delete(f.unread, key)
	return ids, time.Now(), nil
}

func (f *fakeChat) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range f.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeChat) SetPresence(ctx context.Context, userID string, online bool) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.presenceLog = append(f.presenceLog, fmt.Sprintf("%s:%v", userID, online))
	if !online {
		now := time.Now()
		return &now, nil
	}
	return nil, nil
}

func (f *fakeChat) History(ctx context.Context, conversationID string, limit int, before time.Time) ([]domain.MessageRecord, error) {
	return nil, nil
}

func (f *fakeChat) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return &domain.User{ID: userID, Username: userID}, nil
}

func (f *fakeChat) presence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.presenceLog...)
}

// envelope covers every outbound event shape for assertions.
type envelope struct {
	Type           string          `json:"type"`
	Code           string          `json:"code"`
	Message        json.RawMessage `json:"message"`
	ConversationID string          `json:"conversationId"`
	UserID         string          `json:"userId"`
	SocketID       string          `json:"socketId"`
	RecipientID    string          `json:"recipientId"`
	MessageID      string          `json:"messageId"`
	MessageIDs     []string        `json:"messageIds"`
	IsOnline       bool            `json:"isOnline"`
}

type fixture struct {
	co       *Coordinator
	hub      *hub.Hub
	registry *registry.Registry
	chat     *fakeChat
	resolver staticResolver
	cfg      config.WebSocketConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     32,
	}

	reg := registry.New()
	h := hub.New(reg, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	fc := newFakeChat()
	resolver := staticResolver{}
	return &fixture{
		co:       NewCoordinator(resolver, fc, reg, h),
		hub:      h,
		registry: reg,
		chat:     fc,
		resolver: resolver,
		cfg:      cfg,
	}
}

// connect brings a session to Active and consumes the connected ack.
func (f *fixture) connect(t *testing.T, connID, userID string) *hub.Client {
	t.Helper()

	token := "token-" + connID
	f.resolver[token] = &domain.Principal{UserID: userID, Username: userID}

	client := hub.NewClient(connID, f.hub, nil, f.cfg)
	if err := f.co.Connect(context.Background(), client, token); err != nil {
		t.Fatalf("Connect(%s) error: %v", connID, err)
	}

	ev := f.recv(t, client)
	if ev.Type != domain.EventConnected {
		t.Fatalf("first event = %q, want %q", ev.Type, domain.EventConnected)
	}
	return client
}

func (f *fixture) recv(t *testing.T, c *hub.Client) envelope {
	t.Helper()
	select {
	case payload := <-c.Send:
		var ev envelope
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("unmarshal event %s: %v", payload, err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return envelope{}
	}
}

func (f *fixture) expectNone(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case payload := <-c.Send:
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func (f *fixture) action(t *testing.T, c *hub.Client, action interface{}) {
	t.Helper()
	raw, err := json.Marshal(action)
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	f.co.HandleAction(c, raw)
}

func TestCoordinator_ConnectHydratesRooms(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")
	f.chat.addConversation("conv2", "user1", "user3")

	client := f.connect(t, "conn1", "user1")

	for _, conversationID := range []string{"conv1", "conv2"} {
		if !f.registry.InRoom(client.ID, conversationID) {
			t.Errorf("connection not joined to %s after connect", conversationID)
		}
	}
	if got := f.chat.presence(); len(got) != 1 || got[0] != "user1:true" {
		t.Errorf("presence log = %v, want [user1:true]", got)
	}
}

func TestCoordinator_ConnectRejectsBadCredential(t *testing.T) {
	f := newFixture(t)

	client := hub.NewClient("conn1", f.hub, nil, f.cfg)
	if err := f.co.Connect(context.Background(), client, "garbage"); err == nil {
		t.Fatal("Connect() with bad credential succeeded, want error")
	}
	if f.registry.IsUserOnline("user1") {
		t.Error("session registered despite failed authentication")
	}
}

func TestCoordinator_PresenceFollowsLastSession(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")

	peer := f.connect(t, "peer", "user2")

	// First session flips the user online and notifies the room.
	s1 := f.connect(t, "s1", "user1")
	ev := f.recv(t, peer)
	if ev.Type != domain.EventOnlineStatusChanged || !ev.IsOnline || ev.UserID != "user1" {
		t.Fatalf("peer event = %+v, want user1 online", ev)
	}

	// A second concurrent session changes nothing for observers.
	s2 := f.connect(t, "s2", "user1")
	f.expectNone(t, peer)

	// Closing one of two sessions keeps the user online.
	f.co.Disconnect(s1)
	f.expectNone(t, peer)
	if !f.registry.IsUserOnline("user1") {
		t.Fatal("user went offline while a session remained")
	}

	// Closing the last session flips the user offline.
	f.co.Disconnect(s2)
	ev = f.recv(t, peer)
	if ev.Type != domain.EventOnlineStatusChanged || ev.IsOnline || ev.UserID != "user1" {
		t.Fatalf("peer event = %+v, want user1 offline", ev)
	}

	want := []string{"user2:true", "user1:true", "user1:false"}
	if got := f.chat.presence(); len(got) != len(want) {
		t.Errorf("presence log = %v, want %v", got, want)
	}
}

func TestCoordinator_JoinDeniedForNonParticipant(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user2", "user3")

	client := f.connect(t, "conn1", "user1")

	f.action(t, client, domain.JoinConversationAction{
		Type:           domain.ActionJoinConversation,
		ConversationID: "conv1",
	})

	ev := f.recv(t, client)
	if ev.Type != domain.EventError || ev.Code != domain.ErrCodeAuthorization {
		t.Fatalf("event = %+v, want %s error", ev, domain.ErrCodeAuthorization)
	}
	if f.registry.InRoom(client.ID, "conv1") {
		t.Error("non-participant was joined to the room")
	}
}

func TestCoordinator_JoinAndLeave(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")

	client := f.connect(t, "conn1", "user1")
	f.registry.LeaveRoom(client.ID, "conv1")

	f.action(t, client, domain.JoinConversationAction{
		Type:           domain.ActionJoinConversation,
		ConversationID: "conv1",
	})
	if ev := f.recv(t, client); ev.Type != domain.EventConversationJoined || ev.ConversationID != "conv1" {
		t.Fatalf("event = %+v, want conversationJoined conv1", ev)
	}
	if !f.registry.InRoom(client.ID, "conv1") {
		t.Error("connection not in room after join")
	}

	f.action(t, client, domain.LeaveConversationAction{
		Type:           domain.ActionLeaveConversation,
		ConversationID: "conv1",
	})
	if ev := f.recv(t, client); ev.Type != domain.EventConversationLeft {
		t.Fatalf("event = %+v, want conversationLeft", ev)
	}
	if f.registry.InRoom(client.ID, "conv1") {
		t.Error("connection still in room after leave")
	}

	// Leaving a room it is not in still acks.
	f.action(t, client, domain.LeaveConversationAction{
		Type:           domain.ActionLeaveConversation,
		ConversationID: "conv1",
	})
	if ev := f.recv(t, client); ev.Type != domain.EventConversationLeft {
		t.Fatalf("event = %+v, want conversationLeft", ev)
	}
}

func TestCoordinator_SendMessageValidation(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")
	client := f.connect(t, "conn1", "user1")

	tests := []struct {
		name   string
		action domain.SendMessageAction
	}{
		{
			name: "both targets",
			action: domain.SendMessageAction{
				Type:           domain.ActionSendMessage,
				Content:        "hi",
				ConversationID: "conv1",
				RecipientID:    "user2",
			},
		},
		{
			name: "no target",
			action: domain.SendMessageAction{
				Type:    domain.ActionSendMessage,
				Content: "hi",
			},
		},
		{
			name: "blank content",
			action: domain.SendMessageAction{
				Type:           domain.ActionSendMessage,
				Content:        "   ",
				ConversationID: "conv1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.action(t, client, tt.action)
			ev := f.recv(t, client)
			if ev.Type != domain.EventError || ev.Code != domain.ErrCodeValidation {
				t.Fatalf("event = %+v, want %s error", ev, domain.ErrCodeValidation)
			}
		})
	}
}

func TestCoordinator_SendMessageToExistingConversation(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")

	sender := f.connect(t, "conn1", "user1")
	peer := f.connect(t, "conn2", "user2")
	f.recv(t, sender) // user2 came online

	f.action(t, sender, domain.SendMessageAction{
		Type:           domain.ActionSendMessage,
		Content:        "hello",
		ConversationID: "conv1",
	})

	// The room broadcast includes the sender, then the sender alone
	// gets the persistence ack.
	ev := f.recv(t, sender)
	if ev.Type != domain.EventNewMessage {
		t.Fatalf("sender event = %+v, want newMessage", ev)
	}
	var record domain.MessageRecord
	if err := json.Unmarshal(ev.Message, &record); err != nil {
		t.Fatalf("unmarshal message record: %v", err)
	}
	if record.Content != "hello" || record.AuthorID != "user1" || record.ConversationID != "conv1" {
		t.Errorf("record = %+v, want hello from user1 in conv1", record)
	}

	ack := f.recv(t, sender)
	if ack.Type != domain.EventMessageSent || ack.MessageID != record.ID {
		t.Fatalf("sender ack = %+v, want messageSent for %s", ack, record.ID)
	}

	if ev := f.recv(t, peer); ev.Type != domain.EventNewMessage {
		t.Fatalf("peer event = %+v, want newMessage", ev)
	}
}

func TestCoordinator_SendMessageToRecipientCreatesConversation(t *testing.T) {
	f := newFixture(t)

	sender := f.connect(t, "conn1", "user1")
	recipient := f.connect(t, "conn2", "user2")

	f.action(t, sender, domain.SendMessageAction{
		Type:        domain.ActionSendMessage,
		Content:     "first contact",
		RecipientID: "user2",
	})

	ev := f.recv(t, recipient)
	if ev.Type != domain.EventNewMessage {
		t.Fatalf("recipient event = %+v, want newMessage", ev)
	}
	var record domain.MessageRecord
	if err := json.Unmarshal(ev.Message, &record); err != nil {
		t.Fatalf("unmarshal message record: %v", err)
	}

	// Both live connections were subscribed to the fresh room.
	if !f.registry.InRoom(recipient.ID, record.ConversationID) {
		t.Error("recipient connection not subscribed to new conversation")
	}
	if !f.registry.InRoom(sender.ID, record.ConversationID) {
		t.Error("sender connection not subscribed to new conversation")
	}

	f.recv(t, sender) // newMessage
	if ack := f.recv(t, sender); ack.Type != domain.EventMessageSent {
		t.Fatalf("sender ack = %+v, want messageSent", ack)
	}
}

func TestCoordinator_StartConversationDedup(t *testing.T) {
	f := newFixture(t)
	client := f.connect(t, "conn1", "user1")

	start := domain.StartConversationAction{
		Type:        domain.ActionStartConversation,
		RecipientID: "user2",
	}

	f.action(t, client, start)
	first := f.recv(t, client)
	if first.Type != domain.EventConversationStarted || first.RecipientID != "user2" {
		t.Fatalf("event = %+v, want conversationStarted for user2", first)
	}

	f.action(t, client, start)
	second := f.recv(t, client)
	if second.ConversationID != first.ConversationID {
		t.Errorf("second start returned %s, want the existing %s", second.ConversationID, first.ConversationID)
	}
	if f.chat.createCalls != 1 {
		t.Errorf("conversation created %d times, want 1", f.chat.createCalls)
	}
}

func TestCoordinator_StartConversationWithSelf(t *testing.T) {
	f := newFixture(t)
	client := f.connect(t, "conn1", "user1")

	f.action(t, client, domain.StartConversationAction{
		Type:        domain.ActionStartConversation,
		RecipientID: "user1",
	})
	ev := f.recv(t, client)
	if ev.Type != domain.EventError || ev.Code != domain.ErrCodeValidation {
		t.Fatalf("event = %+v, want %s error", ev, domain.ErrCodeValidation)
	}
}

func TestCoordinator_MarkRead(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")
	f.chat.seedUnread("conv1", "user2", "msg-1", "msg-2")

	author := f.connect(t, "conn1", "user1")
	reader := f.connect(t, "conn2", "user2")
	f.recv(t, author) // user2 came online

	markRead := domain.MarkAsReadAction{
		Type:           domain.ActionMarkAsRead,
		ConversationID: "conv1",
	}
	f.action(t, reader, markRead)

	// The receipt event goes to the room minus the reader.
	ev := f.recv(t, author)
	if ev.Type != domain.EventMessagesRead || ev.UserID != "user2" {
		t.Fatalf("author event = %+v, want messagesRead by user2", ev)
	}
	if len(ev.MessageIDs) != 2 {
		t.Errorf("messageIds = %v, want 2 entries", ev.MessageIDs)
	}
	f.expectNone(t, reader)

	// With nothing left unread a repeat emits no event at all.
	f.action(t, reader, markRead)
	f.expectNone(t, author)
	f.expectNone(t, reader)
}

func TestCoordinator_TypingLifecycle(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")

	typist := f.connect(t, "conn1", "user1")
	peer := f.connect(t, "conn2", "user2")
	f.recv(t, typist) // user2 came online

	startTyping := domain.TypingAction{
		Type:           domain.ActionStartTyping,
		ConversationID: "conv1",
	}
	f.action(t, typist, startTyping)
	ev := f.recv(t, peer)
	if ev.Type != domain.EventUserTyping || ev.UserID != "user1" || ev.ConversationID != "conv1" {
		t.Fatalf("peer event = %+v, want userTyping by user1", ev)
	}

	// Repeating the start without a stop changes nothing.
	f.action(t, typist, startTyping)
	f.expectNone(t, peer)

	f.action(t, typist, domain.TypingAction{
		Type:           domain.ActionStopTyping,
		ConversationID: "conv1",
	})
	if ev := f.recv(t, peer); ev.Type != domain.EventUserStoppedTyping {
		t.Fatalf("peer event = %+v, want userStoppedTyping", ev)
	}

	// Stopping again is a no-op.
	f.action(t, typist, domain.TypingAction{
		Type:           domain.ActionStopTyping,
		ConversationID: "conv1",
	})
	f.expectNone(t, peer)
}

func TestCoordinator_DisconnectClearsTyping(t *testing.T) {
	f := newFixture(t)
	f.chat.addConversation("conv1", "user1", "user2")

	typist := f.connect(t, "conn1", "user1")
	peer := f.connect(t, "conn2", "user2")
	f.recv(t, typist) // user2 came online

	f.action(t, typist, domain.TypingAction{
		Type:           domain.ActionStartTyping,
		ConversationID: "conv1",
	})
	f.recv(t, peer) // userTyping

	f.co.Disconnect(typist)

	ev := f.recv(t, peer)
	if ev.Type != domain.EventUserStoppedTyping || ev.UserID != "user1" {
		t.Fatalf("peer event = %+v, want userStoppedTyping by user1", ev)
	}
	ev = f.recv(t, peer)
	if ev.Type != domain.EventOnlineStatusChanged || ev.IsOnline {
		t.Fatalf("peer event = %+v, want user1 offline", ev)
	}

	// Teardown runs once; repeating it emits nothing.
	f.co.Disconnect(typist)
	f.expectNone(t, peer)
}

func TestCoordinator_InvalidFrames(t *testing.T) {
	f := newFixture(t)
	client := f.connect(t, "conn1", "user1")

	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"type":`},
		{name: "unknown type", raw: `{"type":"selfDestruct"}`},
		{name: "join without conversation", raw: `{"type":"joinConversation"}`},
		{name: "typing without conversation", raw: `{"type":"startTyping"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.co.HandleAction(client, []byte(tt.raw))
			ev := f.recv(t, client)
			if ev.Type != domain.EventError || ev.Code != domain.ErrCodeValidation {
				t.Fatalf("event = %+v, want %s error", ev, domain.ErrCodeValidation)
			}
		})
	}
}
