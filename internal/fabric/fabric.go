// Package fabric is the publish/subscribe transport that carries room and presence
// events between server processes.
package fabric

import (
	"context"
	"strings"
)

const (
	// ConversationPrefix is prepended to a conversation id to form its subject.
	ConversationPrefix = "chat.conversation."
	// ConversationPattern matches every conversation subject.
	ConversationPattern = ConversationPrefix + "*"
	// PresenceSubject carries system-wide presence transitions.
	PresenceSubject = "chat.presence"
)

// ConversationSubject returns the subject of a conversation room.
func ConversationSubject(conversationID string) string {
	return ConversationPrefix + conversationID
}

// ConversationFromSubject extracts the conversation id from a room subject.
func ConversationFromSubject(subject string) (string, bool) {
	id, ok := strings.CutPrefix(subject, ConversationPrefix)
	return id, ok && id != ""
}

// Handler receives a published payload. Handlers must not block.
type Handler func(subject string, payload []byte)

// Subscription is an active pattern subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus publishes payloads to subjects and fans them out to subscribers on every process.
// Messages published by one process to one subject are delivered in publish order.
type Bus interface {
	Publish(ctx context.Context, subject string, payload []byte) error

	// Subscribe registers h for subjects matching pattern. Patterns are dot-separated
	// tokens where "*" matches exactly one token.
	Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error)

	Close() error
}

// Match reports whether subject matches a dot-token pattern.
func Match(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	if len(pt) != len(st) {
		return false
	}
	for i := range pt {
		if pt[i] != "*" && pt[i] != st[i] {
			return false
		}
	}
	return true
}
