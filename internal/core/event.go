package core

import (
	"encoding/json"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage carries a newly persisted message.
	EventMessage EventKind = iota
	// EventMessageEdited notifies the room about changed content.
	EventMessageEdited
	// EventMessageDeleted notifies the room that a message is gone.
	EventMessageDeleted
	// EventTyping relays a typing indicator.
	EventTyping
	// EventUserStatus is a system-wide presence transition.
	EventUserStatus
	// EventAck answers a single request of the receiving session.
	EventAck
	// EventError notifies the receiving session about a failed request.
	EventError
	// EventParticipantRemoved evicts the user's sessions from the room. Never sent to clients.
	EventParticipantRemoved
)

// Event is sent to clients to describe what happened in the system.
// Room and presence events travel across processes as JSON.
type Event struct {
	Kind           EventKind      `json:"kind"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	MessageID      string         `json:"messageId,omitempty"`
	Content        string         `json:"content,omitempty"`
	IsTyping       bool           `json:"isTyping,omitempty"`
	Online         bool           `json:"online,omitempty"`
	Message        *store.Message `json:"message,omitempty"`

	// ExcludeClient suppresses delivery to the originating session.
	ExcludeClient string `json:"excludeClient,omitempty"`

	RequestID string     `json:"-"`
	Error     *CoreError `json:"-"`
}

func encodeEvent(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
