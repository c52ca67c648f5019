package core

import (
	"sort"
	"sync"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/metrics"
)

// DefaultClientBuffer is the outbound queue length of a session.
const DefaultClientBuffer = 64

// Client is one live session as seen by the core layer. A user may own many.
type Client struct {
	ID     string
	UserID string
	Name   string
	Events chan *Event

	mu    sync.Mutex
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID, name string, buffer int) *Client {
	if name == "" {
		name = userID
	}
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Name:   name,
		Events: make(chan *Event, buffer),
		rooms:  make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

// Deliver queues an event without blocking. A client whose queue is full is
// closed so one slow consumer cannot hold up a broadcast.
func (c *Client) Deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Events <- ev:
		return true
	default:
		metrics.DroppedEvents.Inc()
		c.Close()
		return false
	}
}

// Done is closed once the session should stop.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the session finished. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// InRoom reports whether the session joined the conversation.
func (c *Client) InRoom(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[conversationID]
	return ok
}

// Rooms returns the joined conversation ids in stable order.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Client) addRoom(conversationID string) {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(conversationID string) {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
}
