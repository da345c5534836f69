package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tidechat/tidechat/internal/auth"
	"github.com/tidechat/tidechat/internal/chat"
	"github.com/tidechat/tidechat/internal/domain"
	"github.com/tidechat/tidechat/pkg/log"
	"github.com/tidechat/tidechat/pkg/response"
)

// Handler serves the REST API: account endpoints and conversation reads.
// Realtime traffic goes through the websocket gateway instead.
type Handler struct {
	authService *auth.Service
	chatService chat.Service
}

func NewHandler(authService *auth.Service, chatService chat.Service) *Handler {
	return &Handler{
		authService: authService,
		chatService: chatService,
	}
}

// RegisterRoutes registers all REST routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
		}

		conversations := api.Group("/conversations")
		conversations.Use(RequireAuth(h.authService))
		{
			conversations.GET("", h.ListConversations)
			conversations.GET("/:id/messages", h.ListMessages)
			conversations.PUT("/:id", h.UpdateConversation)
		}

		users := api.Group("/users")
		users.Use(RequireAuth(h.authService))
		{
			users.GET("/:id", h.GetUser)
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Register(ctx, &req)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			response.Conflict(c, err.Error())
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("registration failed")
		response.InternalError(c, "registration failed")
		return
	}

	response.Created(c, result)
}

func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("login failed")
		response.InternalError(c, "login failed")
		return
	}

	response.Success(c, result)
}

// GetUser returns a user's public profile, including presence.
func (h *Handler) GetUser(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := h.chatService.GetUser(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to load user")
		response.InternalError(c, "failed to load user")
		return
	}

	response.Success(c, user.ToResponse())
}

func (h *Handler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()

	conversations, err := h.chatService.ConversationsForUser(ctx, currentUserID(c))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list conversations")
		response.InternalError(c, "failed to list conversations")
		return
	}

	response.Success(c, conversations)
}

func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")
	userID := currentUserID(c)

	ok, err := h.chatService.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("membership check failed")
		response.InternalError(c, "failed to load messages")
		return
	}
	if !ok {
		response.Forbidden(c, "you are not a participant of this conversation")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "before must be an RFC3339 timestamp")
			return
		}
		before = parsed
	}

	records, err := h.chatService.History(ctx, conversationID, limit, before)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to load messages")
		response.InternalError(c, "failed to load messages")
		return
	}

	response.Success(c, records)
}

// UpdateConversation accepts the update call but conversation metadata
// is immutable: the current record is returned unchanged.
func (h *Handler) UpdateConversation(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")
	userID := currentUserID(c)

	ok, err := h.chatService.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("membership check failed")
		response.InternalError(c, "failed to update conversation")
		return
	}
	if !ok {
		response.Forbidden(c, "you are not a participant of this conversation")
		return
	}

	conversation, err := h.chatService.UpdateConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to update conversation")
		response.InternalError(c, "failed to update conversation")
		return
	}

	response.Success(c, conversation)
}
