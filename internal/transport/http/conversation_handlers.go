package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/proto"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

// ConversationHandlers provides HTTP handlers for conversations and their history.
type ConversationHandlers struct {
	svc *core.Service
	log *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(svc *core.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{svc: svc, log: logger}
}

// CreateConversationRequest represents the create conversation request body.
type CreateConversationRequest struct {
	Type           string   `json:"type"`
	Title          string   `json:"title" binding:"max=128"`
	PropertyID     string   `json:"propertyId"`
	ParticipantIDs []string `json:"participantIds" binding:"required,min=1"`
}

// ConversationListResponse wraps the caller's conversations.
type ConversationListResponse struct {
	Conversations []proto.Conversation `json:"conversations"`
}

// HistoryResponse is one page of history, oldest first.
type HistoryResponse struct {
	Messages []proto.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

// List handles listing the caller's conversations.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	user := currentUser(c)

	convs, err := h.svc.ListConversations(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := ConversationListResponse{Conversations: make([]proto.Conversation, 0, len(convs))}
	for _, conv := range convs {
		resp.Conversations = append(resp.Conversations, proto.NewConversation(conv, user.ID))
	}
	c.JSON(http.StatusOK, resp)
}

// Create handles conversation creation.
// POST /api/conversations
func (h *ConversationHandlers) Create(c *gin.Context) {
	user := currentUser(c)

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		badRequest(c, "invalid request body")
		return
	}

	conv, err := h.svc.CreateConversation(c.Request.Context(), user.ID, core.CreateConversationInput{
		Type:           store.ConversationType(req.Type),
		Title:          req.Title,
		PropertyID:     req.PropertyID,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, proto.NewConversation(conv, user.ID))
}

// Get returns a single conversation.
// GET /api/conversations/:id
func (h *ConversationHandlers) Get(c *gin.Context) {
	user := currentUser(c)

	conv, err := h.svc.GetConversation(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proto.NewConversation(conv, user.ID))
}

// Messages returns a page of history older than the optional cursor.
// GET /api/conversations/:id/messages?before=<RFC3339>&limit=<n>
func (h *ConversationHandlers) Messages(c *gin.Context) {
	user := currentUser(c)

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, "before must be an RFC3339 timestamp")
			return
		}
		before = &t
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, hasMore, err := h.svc.History(c.Request.Context(), user.ID, c.Param("id"), before, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Messages: proto.NewMessages(msgs),
		HasMore:  hasMore,
	})
}

// MarkRead resets the caller's unread counter.
// POST /api/conversations/:id/read
func (h *ConversationHandlers) MarkRead(c *gin.Context) {
	user := currentUser(c)

	if err := h.svc.MarkRead(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave removes the caller from the conversation.
// DELETE /api/conversations/:id/participants/me
func (h *ConversationHandlers) Leave(c *gin.Context) {
	user := currentUser(c)

	if err := h.svc.LeaveConversation(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
