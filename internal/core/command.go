package core

import "github.com/Tshikamisava/kasi-rent-sub000/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinConversation subscribes the session to a conversation room.
	CommandJoinConversation CommandKind = iota
	// CommandLeaveConversation unsubscribes the session from a conversation room.
	CommandLeaveConversation
	// CommandTyping relays a typing indicator to the rest of the room.
	CommandTyping
	// CommandSendMessage persists and broadcasts a new message.
	CommandSendMessage
	// CommandEditMessage replaces the content of an existing message.
	CommandEditMessage
	// CommandDeleteMessage hard-deletes a message.
	CommandDeleteMessage
)

// Command represents an action requested by a client session.
type Command struct {
	Kind CommandKind
	// RequestID is the client correlation id echoed on the ack or error.
	RequestID      string
	ConversationID string
	MessageID      string
	Content        string
	ContentType    store.ContentType
	AttachmentURL  string
	IsTyping       bool
}
