package utils

import "github.com/google/uuid"

// NewID returns a random UUID string used for conversations, messages and sessions.
func NewID() string {
	return uuid.NewString()
}
