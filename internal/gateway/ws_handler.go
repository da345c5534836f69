package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tidechat/tidechat/internal/auth"
	"github.com/tidechat/tidechat/internal/config"
	"github.com/tidechat/tidechat/internal/domain"
	"github.com/tidechat/tidechat/internal/hub"
	"github.com/tidechat/tidechat/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades HTTP requests to websocket sessions and hands them
// to the coordinator.
type WSHandler struct {
	coordinator *Coordinator
	hub         *hub.Hub
	wsCfg       config.WebSocketConfig
}

func NewWSHandler(coordinator *Coordinator, h *hub.Hub, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		hub:         h,
		wsCfg:       wsCfg,
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.Handle)
}

// Handle runs one connection from handshake to teardown.
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	credential := bearerCredential(c)

	if err := h.coordinator.Connect(c.Request.Context(), client, credential); err != nil {
		h.rejectConnection(conn, client, err)
		return
	}

	go client.WritePump()
	defer h.coordinator.Disconnect(client)
	client.ReadPump(h.coordinator.HandleAction)
}

// rejectConnection emits a final error frame and closes. The client was
// registered in the hub only if the session registry accepted it first.
func (h *WSHandler) rejectConnection(conn *websocket.Conn, client *hub.Client, err error) {
	code := domain.ErrCodeAuthentication
	if !errors.Is(err, auth.ErrMissingCredential) && !errors.Is(err, auth.ErrInvalidToken) {
		code = domain.ErrCodeInternal
	}

	event := domain.NewErrorEvent(code, err.Error())
	if payload, marshalErr := json.Marshal(event); marshalErr == nil {
		conn.SetWriteDeadline(time.Now().Add(h.wsCfg.WriteWait))
		conn.WriteMessage(websocket.TextMessage, payload)
	}
	conn.Close()

	log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("connection rejected")
}

// bearerCredential extracts the handshake credential from the
// Authorization header or, for browser clients that cannot set headers
// on websocket upgrades, the token query parameter.
func bearerCredential(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
