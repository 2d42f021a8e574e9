package api

import (
	"net/http"
	"strconv"
	"time"

	"whatsmoney/backend/messaging/delivery"
	"whatsmoney/backend/messaging/models"
	"whatsmoney/backend/messaging/service"
	"whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// ChatHandler adapts the core messaging API to HTTP. It resolves the actor
// from the verified token and threads it into every call; wire shapes are
// its concern, semantics belong to the service layer.
type ChatHandler struct {
	messages *service.MessageService
	reads    *service.ReadTracker
	channel  *delivery.Channel
}

func NewChatHandler(messages *service.MessageService, reads *service.ReadTracker, channel *delivery.Channel) *ChatHandler {
	return &ChatHandler{
		messages: messages,
		reads:    reads,
		channel:  channel,
	}
}

type sendRequest struct {
	RecipientID uint   `json:"recipient_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	FileURL     string `json:"file_url"`
}

// Send handles POST /chat/send
func (h *ChatHandler) Send(c *gin.Context) {
	actor, ok := jwt.ActorID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("missing actor identity"))
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("malformed request body"))
		return
	}

	message, err := h.messages.Send(c.Request.Context(), service.SendRequest{
		Sender:      actor,
		Recipient:   req.RecipientID,
		Content:     req.Content,
		MessageType: models.MessageType(req.MessageType),
		FileURL:     req.FileURL,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// History handles GET /chat/messages?with=<id>[&since=<RFC3339>]
func (h *ChatHandler) History(c *gin.Context) {
	actor, ok := jwt.ActorID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("missing actor identity"))
		return
	}

	withUser, err := parseUserParam(c.Query("with"))
	if err != nil {
		c.Error(err)
		return
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.Error(errors.NewValidationError("since must be RFC3339"))
			return
		}
		since = &t
	}

	messages, err := h.messages.History(c.Request.Context(), actor, withUser, since)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// Conversations handles GET /chat/conversations
func (h *ChatHandler) Conversations(c *gin.Context) {
	actor, ok := jwt.ActorID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("missing actor identity"))
		return
	}

	conversations, err := h.messages.Conversations(c.Request.Context(), actor)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversations)
}

type readRequest struct {
	MessageID uint `json:"message_id"`
}

// Read handles POST /chat/read. A request by someone other than the
// recipient, or for an already-read message, answers changed=false rather
// than an error.
func (h *ChatHandler) Read(c *gin.Context) {
	actor, ok := jwt.ActorID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("missing actor identity"))
		return
	}

	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageID == 0 {
		c.Error(errors.NewValidationError("message_id is required"))
		return
	}

	changed, err := h.reads.AcknowledgeOne(c.Request.Context(), req.MessageID, actor)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

type readAllRequest struct {
	UserID uint `json:"user_id"`
}

// ReadAll handles POST /chat/read-all
func (h *ChatHandler) ReadAll(c *gin.Context) {
	actor, ok := jwt.ActorID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("missing actor identity"))
		return
	}

	var req readAllRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		c.Error(errors.NewValidationError("user_id is required"))
		return
	}

	count, err := h.reads.AcknowledgeAll(c.Request.Context(), actor, req.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func parseUserParam(raw string) (uint, error) {
	if raw == "" {
		return 0, errors.NewValidationError("with parameter is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.NewValidationError("with must be a user id")
	}
	return uint(id), nil
}
