package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User is the subset of the external account record this service reads.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// ConversationType is informational; it does not change protocol behavior.
type ConversationType string

const (
	ConversationTypePrivate  ConversationType = "private"
	ConversationTypeProperty ConversationType = "property"
	ConversationTypeGroup    ConversationType = "group"
)

// Valid reports whether t is a known conversation type.
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationTypePrivate, ConversationTypeProperty, ConversationTypeGroup:
		return true
	}
	return false
}

// ParticipantRole defines a participant's role in a conversation.
type ParticipantRole string

const (
	RoleOwner       ParticipantRole = "owner"
	RoleParticipant ParticipantRole = "participant"
)

// ContentType defines how a message body is interpreted.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeAudio ContentType = "audio"
	ContentTypeFile  ContentType = "file"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeText, ContentTypeImage, ContentTypeAudio, ContentTypeFile:
		return true
	}
	return false
}

// Conversation is a persistent container of messages among a fixed set of participants.
type Conversation struct {
	ID            string
	Type          ConversationType
	Title         string
	PropertyID    string
	DirectKey     *string // private conversations between two users: "dm:{minID}:{maxID}"
	LastMessageAt *time.Time
	CreatedBy     string
	CreatedAt     time.Time

	// Participants is populated by list queries.
	Participants []*Participant
}

// Participant returns the participant row for userID, or nil.
func (c *Conversation) Participant(userID string) *Participant {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Participant is a user authorized to act on a conversation, with read state.
type Participant struct {
	ConversationID string
	UserID         string
	Role           ParticipantRole
	LastReadAt     *time.Time
	UnreadCount    int
	JoinedAt       time.Time
	User           *User
}

// Message is a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	Seq            int64
	SenderID       string
	Sender         *User
	Content        string
	ContentType    ContentType
	AttachmentURL  string
	Edited         bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// UserStore reads the external user directory.
type UserStore interface {
	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// UpsertUser creates or refreshes a user mirror row.
	UpsertUser(ctx context.Context, user *User) error
}

// ConversationStore handles conversations and their participants.
type ConversationStore interface {
	// CreateConversation inserts the conversation and all participants in one transaction.
	// The creator becomes owner. For conversations with a DirectKey an existing
	// conversation with the same key is returned instead, with any party who left it
	// added back.
	CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations lists the user's conversations, most recent activity first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// GetParticipant returns ErrNotFound when the user is not a participant.
	GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error)

	// SharesConversation reports whether both users participate in some conversation.
	SharesConversation(ctx context.Context, userA, userB string) (bool, error)

	// RemoveParticipant deletes the participant row.
	RemoveParticipant(ctx context.Context, conversationID, userID string) error

	// MarkRead resets the participant's unread count and stamps last_read_at.
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists msg, bumps the conversation's last_message_at and increments
	// unread counts of every other participant atomically. It assigns Seq and may move
	// CreatedAt forward to keep it strictly increasing within the conversation.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message with its sender resolved.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessageContent replaces content and sets edited. Only rows sent by senderID match.
	UpdateMessageContent(ctx context.Context, id, senderID, content string, at time.Time) error

	// DeleteMessage hard-deletes a message. Only rows sent by senderID match.
	DeleteMessage(ctx context.Context, id, senderID string) error

	// ListMessages returns up to limit messages older than before (nil = newest),
	// in ascending creation order, senders resolved.
	ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
