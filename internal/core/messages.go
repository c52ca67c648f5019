package core

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/metrics"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/utils"
)

// SendMessageInput is a new message as submitted by a client.
type SendMessageInput struct {
	ConversationID string
	Content        string
	ContentType    store.ContentType
	AttachmentURL  string
}

// SendMessage persists a message and broadcasts it to the conversation room.
// The returned message carries the resolved sender and is what the caller's ack holds.
func (s *Service) SendMessage(ctx context.Context, senderID string, in SendMessageInput) (*store.Message, error) {
	if in.ContentType == "" {
		in.ContentType = store.ContentTypeText
	}
	if err := s.validateMessage(in); err != nil {
		return nil, err
	}
	if _, err := s.requireParticipant(ctx, in.ConversationID, senderID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(in.ConversationID)
	defer unlock()

	msg := &store.Message{
		ID:             utils.NewID(),
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        in.Content,
		ContentType:    in.ContentType,
		AttachmentURL:  in.AttachmentURL,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, s.storeError(err, "conversation not found")
	}

	resolved, err := s.store.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, s.storeError(err, "message not found")
	}
	metrics.RecordMessage(string(resolved.ContentType))

	if err := s.hub.PublishConversation(ctx, &Event{
		Kind:           EventMessage,
		ConversationID: resolved.ConversationID,
		MessageID:      resolved.ID,
		Message:        resolved,
	}); err != nil {
		// The message is durable; recipients pick it up from history.
		s.log.Error().Err(err).Str("message_id", resolved.ID).Msg("publish message")
	}

	s.log.Debug().
		Str("message_id", resolved.ID).
		Str("conversation_id", resolved.ConversationID).
		Int64("seq", resolved.Seq).
		Msg("message sent")
	return resolved, nil
}

// EditMessage replaces the content of the caller's own message and broadcasts the change.
func (s *Service) EditMessage(ctx context.Context, userID, messageID, content string) (*store.Message, error) {
	msg, err := s.authorizeMessageMutation(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.validateContent(msg.ContentType, content); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(msg.ConversationID)
	defer unlock()

	at := s.now()
	if err := s.store.UpdateMessageContent(ctx, messageID, userID, content, at); err != nil {
		return nil, s.storeError(err, "message not found")
	}
	msg.Content = content
	msg.Edited = true
	msg.UpdatedAt = &at

	if err := s.hub.PublishConversation(ctx, &Event{
		Kind:           EventMessageEdited,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Content:        content,
	}); err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("publish message edit")
	}
	return msg, nil
}

// DeleteMessage hard-deletes the caller's own message and broadcasts the removal.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.authorizeMessageMutation(ctx, userID, messageID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(msg.ConversationID)
	defer unlock()

	if err := s.store.DeleteMessage(ctx, messageID, userID); err != nil {
		return s.storeError(err, "message not found")
	}

	if err := s.hub.PublishConversation(ctx, &Event{
		Kind:           EventMessageDeleted,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	}); err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("publish message delete")
	}
	return nil
}

// authorizeMessageMutation decides who may edit or delete a message: only its
// sender, and only while still a participant of the conversation.
func (s *Service) authorizeMessageMutation(ctx context.Context, userID, messageID string) (*store.Message, error) {
	if messageID == "" {
		return nil, invalid("messageId is required")
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, s.storeError(err, "message not found")
	}
	if msg.SenderID != userID {
		return nil, forbidden("only the sender can change this message")
	}
	if _, err := s.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns up to limit messages older than before, oldest first.
func (s *Service) History(ctx context.Context, userID, conversationID string, before *time.Time, limit int) ([]*store.Message, bool, error) {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		limit = s.opts.HistoryPageSize
	}
	if limit > s.opts.HistoryMaxPage {
		limit = s.opts.HistoryMaxPage
	}

	// One extra row tells whether an older page exists.
	messages, err := s.store.ListMessages(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, false, s.storeError(err, "conversation not found")
	}
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}
	return messages, hasMore, nil
}

// validateContent applies the content rules shared by send and edit: text needs a
// non-blank body, attachments may carry an empty caption.
func (s *Service) validateContent(contentType store.ContentType, content string) error {
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return invalid("content exceeds %d characters", s.opts.MaxContentLength)
	}
	if contentType == store.ContentTypeText && strings.TrimSpace(content) == "" {
		return invalid("content is required")
	}
	return nil
}

func (s *Service) validateMessage(in SendMessageInput) error {
	if in.ConversationID == "" {
		return invalid("conversationId is required")
	}
	if !in.ContentType.Valid() {
		return invalid("unknown content type %q", in.ContentType)
	}
	if err := s.validateContent(in.ContentType, in.Content); err != nil {
		return err
	}

	if in.ContentType == store.ContentTypeText {
		if in.AttachmentURL != "" && !validAttachmentURL(in.AttachmentURL) {
			return invalid("attachmentUrl must be an absolute http(s) URL")
		}
		return nil
	}

	if in.AttachmentURL == "" {
		return invalid("attachmentUrl is required for %s messages", in.ContentType)
	}
	if !validAttachmentURL(in.AttachmentURL) {
		return invalid("attachmentUrl must be an absolute http(s) URL")
	}
	return nil
}

func validAttachmentURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
