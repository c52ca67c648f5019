package core

// Room groups the local sessions subscribed to one conversation.
type Room struct {
	ConversationID string
	clients        map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(conversationID string) *Room {
	return &Room{
		ConversationID: conversationID,
		clients:        make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// ClientsOf returns the room's sessions that belong to userID.
func (r *Room) ClientsOf(userID string) []*Client {
	var out []*Client
	for client := range r.clients {
		if client.UserID == userID {
			out = append(out, client)
		}
	}
	return out
}

// Broadcast sends an event to all clients in the room except the excluded session.
// It returns the number of clients that could not take the event.
func (r *Room) Broadcast(event *Event, excludeClient string) int {
	dropped := 0
	for client := range r.clients {
		if excludeClient != "" && client.ID == excludeClient {
			continue
		}
		if !client.Deliver(event) {
			dropped++
		}
	}
	return dropped
}

// Len returns the number of local sessions in the room.
func (r *Room) Len() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
