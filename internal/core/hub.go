package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/fabric"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/metrics"
)

// Hub tracks the sessions of this process and fans fabric events out to them.
// Every process runs one Hub; the fabric makes room and presence events reach
// sessions held by any of them.
type Hub struct {
	bus fabric.Bus
	log *zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]*Room

	subsMu sync.Mutex
	subs   []fabric.Subscription
}

// NewHub creates a new chat hub instance on top of bus.
func NewHub(bus fabric.Bus, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		bus:     bus,
		log:     logger,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]*Room),
	}
}

// Start subscribes the hub to all conversation and presence subjects.
func (h *Hub) Start(ctx context.Context) error {
	rooms, err := h.bus.Subscribe(ctx, fabric.ConversationPattern, h.dispatchConversation)
	if err != nil {
		return fmt.Errorf("subscribe conversations: %w", err)
	}
	presence, err := h.bus.Subscribe(ctx, fabric.PresenceSubject, h.dispatchPresence)
	if err != nil {
		_ = rooms.Unsubscribe()
		return fmt.Errorf("subscribe presence: %w", err)
	}

	h.subsMu.Lock()
	h.subs = append(h.subs, rooms, presence)
	h.subsMu.Unlock()
	return nil
}

// Stop drops the fabric subscriptions.
func (h *Hub) Stop() {
	h.subsMu.Lock()
	subs := h.subs
	h.subs = nil
	h.subsMu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			h.log.Warn().Err(err).Msg("unsubscribe fabric")
		}
	}
}

// RegisterClient makes the session eligible for presence broadcasts.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// UnregisterClient removes the session from the hub and every room it joined.
// Returns false if the session was not registered.
func (h *Hub) UnregisterClient(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	for _, id := range c.Rooms() {
		h.removeFromRoomLocked(c, id)
	}
	return true
}

// Registered reports whether the session is still registered.
func (h *Hub) Registered(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[c]
	return ok
}

// JoinRoom subscribes the session to the conversation. Returns false if already joined.
func (h *Hub) JoinRoom(c *Client, conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		room = NewRoom(conversationID)
		h.rooms[conversationID] = room
	}
	added := room.AddClient(c)
	c.addRoom(conversationID)
	return added
}

// LeaveRoom unsubscribes the session. Leaving a room never joined is a no-op.
func (h *Hub) LeaveRoom(c *Client, conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeFromRoomLocked(c, conversationID)
}

func (h *Hub) removeFromRoomLocked(c *Client, conversationID string) bool {
	c.removeRoom(conversationID)
	room, ok := h.rooms[conversationID]
	if !ok {
		return false
	}
	removed := room.RemoveClient(c)
	if room.Empty() {
		delete(h.rooms, conversationID)
	}
	return removed
}

// Clients returns a snapshot of the local sessions.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// RoomSize returns the number of local sessions subscribed to the conversation.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, ok := h.rooms[conversationID]; ok {
		return room.Len()
	}
	return 0
}

// PublishConversation sends ev to every session in the conversation room on every process.
func (h *Hub) PublishConversation(ctx context.Context, ev *Event) error {
	return h.publish(ctx, fabric.ConversationSubject(ev.ConversationID), "conversation", ev)
}

// PublishPresence sends ev to every session on every process.
func (h *Hub) PublishPresence(ctx context.Context, ev *Event) error {
	return h.publish(ctx, fabric.PresenceSubject, "presence", ev)
}

func (h *Hub) publish(ctx context.Context, subject, kind string, ev *Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := h.bus.Publish(ctx, subject, payload); err != nil {
		metrics.RecordPublishError(kind)
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (h *Hub) dispatchConversation(subject string, payload []byte) {
	conversationID, ok := fabric.ConversationFromSubject(subject)
	if !ok {
		return
	}
	ev, err := decodeEvent(payload)
	if err != nil {
		h.log.Warn().Err(err).Str("subject", subject).Msg("decode room event")
		return
	}
	ev.ConversationID = conversationID

	if ev.Kind == EventParticipantRemoved {
		h.evict(conversationID, ev.UserID)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	if dropped := room.Broadcast(ev, ev.ExcludeClient); dropped > 0 {
		h.log.Warn().Int("dropped", dropped).Str("conversation_id", conversationID).Msg("slow consumers closed")
	}
}

func (h *Hub) dispatchPresence(subject string, payload []byte) {
	ev, err := decodeEvent(payload)
	if err != nil {
		h.log.Warn().Err(err).Str("subject", subject).Msg("decode presence event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		c.Deliver(ev)
	}
}

// evict removes every local session of userID from the room.
func (h *Hub) evict(conversationID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	for _, c := range room.ClientsOf(userID) {
		h.removeFromRoomLocked(c, conversationID)
	}
}
