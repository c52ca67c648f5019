package core

import (
	"context"
	"errors"
	"strings"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/utils"
)

// CreateConversationInput describes a new conversation. The creator is added as owner.
type CreateConversationInput struct {
	Type           store.ConversationType
	Title          string
	PropertyID     string
	ParticipantIDs []string
}

// CreateConversation creates a conversation between the creator and the named
// participants. Private conversations are unique per pair of users, so creating
// one twice returns the existing conversation.
func (s *Service) CreateConversation(ctx context.Context, creatorID string, in CreateConversationInput) (*store.Conversation, error) {
	others := make([]string, 0, len(in.ParticipantIDs))
	seen := map[string]struct{}{creatorID: {}}
	for _, id := range in.ParticipantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		others = append(others, id)
	}
	if len(others) == 0 {
		return nil, invalid("at least one other participant is required")
	}

	convType := in.Type
	if convType == "" {
		switch {
		case in.PropertyID != "":
			convType = store.ConversationTypeProperty
		case len(others) == 1:
			convType = store.ConversationTypePrivate
		default:
			convType = store.ConversationTypeGroup
		}
	}
	if !convType.Valid() {
		return nil, invalid("unknown conversation type %q", convType)
	}

	conv := &store.Conversation{
		ID:         utils.NewID(),
		Type:       convType,
		Title:      strings.TrimSpace(in.Title),
		PropertyID: in.PropertyID,
		CreatedBy:  creatorID,
		CreatedAt:  s.now(),
	}
	if convType == store.ConversationTypePrivate {
		if len(others) != 1 {
			return nil, invalid("private conversations have exactly two participants")
		}
		key := directKey(creatorID, others[0])
		conv.DirectKey = &key
	}

	created, err := s.store.CreateConversation(ctx, conv, others)
	if err != nil {
		return nil, s.storeError(err, "unknown participant")
	}

	s.log.Info().
		Str("conversation_id", created.ID).
		Str("type", string(created.Type)).
		Str("created_by", creatorID).
		Int("participants", len(created.Participants)).
		Msg("conversation created")
	return created, nil
}

func directKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

// ListConversations returns the caller's conversations, most recent activity first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, s.storeError(err, "conversations not found")
	}
	return convs, nil
}

// GetConversation returns a conversation the caller participates in.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, s.storeError(err, "conversation not found")
	}
	return conv, nil
}

// MarkRead resets the caller's unread counter.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID string) error {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, conversationID, userID, s.now()); err != nil {
		return s.storeError(err, "conversation not found")
	}
	return nil
}

// LeaveConversation removes the caller from the conversation. Their sessions are
// evicted from the room on every process and lose access immediately.
func (s *Service) LeaveConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.store.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return s.storeError(err, "conversation not found")
	}

	ev := &Event{Kind: EventParticipantRemoved, ConversationID: conversationID, UserID: userID}
	if err := s.hub.PublishConversation(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("publish participant removal")
	}
	s.log.Info().Str("conversation_id", conversationID).Str("user_id", userID).Msg("participant left conversation")
	return nil
}

// JoinConversation subscribes the session to the conversation room.
func (s *Service) JoinConversation(ctx context.Context, c *Client, conversationID string) error {
	if conversationID == "" {
		return invalid("conversationId is required")
	}
	if _, err := s.requireParticipant(ctx, conversationID, c.UserID); err != nil {
		return err
	}
	if s.hub.JoinRoom(c, conversationID) {
		s.log.Debug().Str("client_id", c.ID).Str("conversation_id", conversationID).Msg("joined room")
	}
	return nil
}

// LeaveRoom unsubscribes the session. It never fails and emits nothing.
func (s *Service) LeaveRoom(c *Client, conversationID string) {
	if s.hub.LeaveRoom(c, conversationID) {
		s.log.Debug().Str("client_id", c.ID).Str("conversation_id", conversationID).Msg("left room")
	}
}

// Typing relays a typing indicator to every other session in the room.
func (s *Service) Typing(ctx context.Context, c *Client, conversationID string, isTyping bool) error {
	if !c.InRoom(conversationID) {
		return coreError(ErrCodeNotInRoom, "join the conversation first", ErrNotInRoom)
	}
	ev := &Event{
		Kind:           EventTyping,
		ConversationID: conversationID,
		UserID:         c.UserID,
		IsTyping:       isTyping,
		ExcludeClient:  c.ID,
	}
	if err := s.hub.PublishConversation(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("publish typing")
	}
	return nil
}

// requireParticipant is the single participant gate for every conversation operation.
// A missing participant row is an authorization failure; only an unknown
// conversation is reported as not found.
func (s *Service) requireParticipant(ctx context.Context, conversationID, userID string) (*store.Participant, error) {
	p, err := s.store.GetParticipant(ctx, conversationID, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, s.storeError(err, "")
	}

	if _, convErr := s.store.GetConversation(ctx, conversationID); convErr != nil {
		if errors.Is(convErr, store.ErrNotFound) {
			return nil, notFound("conversation not found")
		}
		return nil, s.storeError(convErr, "")
	}
	return nil, forbidden("not a participant of this conversation")
}
