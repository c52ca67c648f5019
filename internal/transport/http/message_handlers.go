package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/proto"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

// MessageHandlers provides the HTTP write path for messages. It goes through the
// same service calls as the websocket, so both agree on who may change a message.
type MessageHandlers struct {
	svc *core.Service
	log *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *core.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{svc: svc, log: logger}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content       string `json:"content"`
	ContentType   string `json:"contentType"`
	AttachmentURL string `json:"attachmentUrl"`
}

// EditMessageRequest represents the edit message request body.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// Send persists and broadcasts a message.
// POST /api/conversations/:id/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	user := currentUser(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), user.ID, core.SendMessageInput{
		ConversationID: c.Param("id"),
		Content:        req.Content,
		ContentType:    store.ContentType(req.ContentType),
		AttachmentURL:  req.AttachmentURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proto.NewMessage(msg))
}

// Edit replaces the content of the caller's message.
// PATCH /api/messages/:id
func (h *MessageHandlers) Edit(c *gin.Context) {
	user := currentUser(c)

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.svc.EditMessage(c.Request.Context(), user.ID, c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proto.NewMessage(msg))
}

// Delete hard-deletes the caller's message.
// DELETE /api/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	user := currentUser(c)

	if err := h.svc.DeleteMessage(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
