package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tidechat/tidechat/internal/config"
	"github.com/tidechat/tidechat/pkg/log"
)

// Memberships resolves broadcast targets. Implemented by the session
// registry; the hub never owns room membership itself.
type Memberships interface {
	ConnectionsInRoom(roomID string) []string
	ConnectionsOfUser(userID string) []string
}

// delivery carries one marshaled event to a set of connections. The
// target set is resolved when the broadcast is issued; connections that
// disappear before the delivery is processed are skipped.
type delivery struct {
	connIDs []string
	exclude string
	payload []byte
}

// Hub fans events out to live websocket connections. A single Run loop
// drains the broadcast queue, which gives FIFO delivery order across
// all broadcasts. A connection that cannot keep up is evicted rather
// than allowed to block its siblings.
type Hub struct {
	memberships Memberships
	clients     map[string]*Client // connID -> client
	register    chan *Client
	unregister  chan *Client
	broadcast   chan *delivery
	mu          sync.RWMutex
	config      config.WebSocketConfig
}

func New(m Memberships, cfg config.WebSocketConfig) *Hub {
	return &Hub{
		memberships: m,
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *delivery, 256),
		config:      cfg,
	}
}

// Run processes registrations and deliveries until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d *delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, connID := range d.connIDs {
		if connID == d.exclude {
			continue
		}
		client, ok := h.clients[connID]
		if !ok {
			continue
		}
		select {
		case client.Send <- d.payload:
		default:
			// Send buffer full: the peer is too slow or gone.
			log.L().Warn().Str(log.FieldConnID, connID).Msg("send buffer full, evicting client")
			go h.Unregister(client)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToRoom delivers an event to every connection subscribed to
// the room, except excludeConn when non-empty. The target set is
// resolved now, so connections that join later never see this event.
func (h *Hub) BroadcastToRoom(roomID string, event interface{}, excludeConn string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast <- &delivery{
		connIDs: h.memberships.ConnectionsInRoom(roomID),
		exclude: excludeConn,
		payload: payload,
	}
	return nil
}

// BroadcastToUser delivers an event to every live connection of a user.
func (h *Hub) BroadcastToUser(userID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast <- &delivery{
		connIDs: h.memberships.ConnectionsOfUser(userID),
		payload: payload,
	}
	return nil
}

// Unicast delivers an event to a single connection.
func (h *Hub) Unicast(connID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast <- &delivery{
		connIDs: []string{connID},
		payload: payload,
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
