package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/proto"
)

const maxPresenceQuery = 100

// UserHandlers provides HTTP handlers for user profiles and presence.
type UserHandlers struct {
	svc *core.Service
	log *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(svc *core.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{svc: svc, log: logger}
}

// PresenceResponse maps user ids to their online state.
type PresenceResponse struct {
	Online map[string]bool `json:"online"`
}

// Me returns the authenticated user.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, proto.NewUser(currentUser(c)))
}

// Get returns a user profile with presence. The email is only shown to users who
// share a conversation with the profile owner.
// GET /api/users/:id
func (h *UserHandlers) Get(c *gin.Context) {
	profile, err := h.svc.GetUser(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	view := proto.NewUser(profile.User)
	if !profile.Contact {
		view.Email = ""
	}
	view.Online = &profile.Online
	c.JSON(http.StatusOK, view)
}

// Presence reports which of the requested users are online.
// GET /api/presence?userId=a&userId=b
func (h *UserHandlers) Presence(c *gin.Context) {
	ids := c.QueryArray("userId")
	if len(ids) == 0 {
		badRequest(c, "userId is required")
		return
	}
	if len(ids) > maxPresenceQuery {
		badRequest(c, "too many userId values")
		return
	}

	online, err := h.svc.OnlineUsers(c.Request.Context(), ids...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PresenceResponse{Online: online})
}
