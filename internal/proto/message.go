package proto

import (
	"encoding/json"
	"time"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string `json:"type"`
	// ID is an optional client correlation id echoed on the ack or error.
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin   = "join_conversation"
	InboundTypeLeave  = "leave_conversation"
	InboundTypeTyping = "typing"
	InboundTypeSend   = "send_message"
	InboundTypeEdit   = "edit_message"
	InboundTypeDelete = "delete_message"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventUserStatus     = "user_status"
	EventMessage        = "message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventTyping         = "typing"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ConversationData names the conversation of a join or leave request.
type ConversationData struct {
	ConversationID string `json:"conversationId"`
}

// TypingData is a typing indicator from the client.
type TypingData struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// SendData is a new chat message from the client.
type SendData struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ContentType    string `json:"contentType,omitempty"`
	AttachmentURL  string `json:"attachmentUrl,omitempty"`
}

// EditData replaces a message's content. ConversationID is informational; the
// stored conversation of the message is authoritative.
type EditData struct {
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
}

// DeleteData removes a message.
type DeleteData struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// User is the public view of a sender or participant.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Online *bool  `json:"online,omitempty"`
}

// Message is a fully resolved message with sender fields.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Seq            int64      `json:"seq"`
	SenderID       string     `json:"senderId"`
	Sender         User       `json:"sender"`
	Content        string     `json:"content"`
	ContentType    string     `json:"contentType"`
	AttachmentURL  string     `json:"attachmentUrl,omitempty"`
	Edited         bool       `json:"edited"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// UserStatus announces a presence transition.
type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// MessageEdited announces new content for a message.
type MessageEdited struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Edited         bool   `json:"edited"`
}

// MessageDeleted announces a hard-deleted message.
type MessageDeleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// Typing relays a typing indicator.
type Typing struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// Participant is a conversation member with read state.
type Participant struct {
	User        User       `json:"user"`
	Role        string     `json:"role"`
	UnreadCount int        `json:"unreadCount"`
	LastReadAt  *time.Time `json:"lastReadAt,omitempty"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

// Conversation is the list/detail view of a conversation.
type Conversation struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Title         string        `json:"title,omitempty"`
	PropertyID    string        `json:"propertyId,omitempty"`
	LastMessageAt *time.Time    `json:"lastMessageAt,omitempty"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
	UnreadCount   int           `json:"unreadCount"`
	Participants  []Participant `json:"participants"`
}

// NewUser converts a stored user.
func NewUser(u *store.User) User {
	if u == nil {
		return User{}
	}
	return User{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NewMessage converts a stored message.
func NewMessage(m *store.Message) Message {
	view := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Sender:         User{ID: m.SenderID},
		Content:        m.Content,
		ContentType:    string(m.ContentType),
		AttachmentURL:  m.AttachmentURL,
		Edited:         m.Edited,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Sender != nil {
		view.Sender = NewUser(m.Sender)
	}
	return view
}

// NewMessages converts a page of stored messages, keeping order.
func NewMessages(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessage(m))
	}
	return out
}

// NewConversation converts a stored conversation as seen by viewerID.
func NewConversation(c *store.Conversation, viewerID string) Conversation {
	view := Conversation{
		ID:            c.ID,
		Type:          string(c.Type),
		Title:         c.Title,
		PropertyID:    c.PropertyID,
		LastMessageAt: c.LastMessageAt,
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt,
		Participants:  make([]Participant, 0, len(c.Participants)),
	}
	for _, p := range c.Participants {
		user := User{ID: p.UserID}
		if p.User != nil {
			user = NewUser(p.User)
		}
		view.Participants = append(view.Participants, Participant{
			User:        user,
			Role:        string(p.Role),
			UnreadCount: p.UnreadCount,
			LastReadAt:  p.LastReadAt,
			JoinedAt:    p.JoinedAt,
		})
		if p.UserID == viewerID {
			view.UnreadCount = p.UnreadCount
		}
	}
	return view
}
