// Package presence tracks which users hold at least one live connection.
//
// Every mutation is a single atomic step on the backing registry that both changes the
// connection set and reports whether the user crossed the offline/online boundary, so
// concurrent connects and disconnects of one user can never produce more "online"
// transitions than "offline" ones.
package presence

import "context"

// Registry is a reference-counted presence registry keyed by user id.
type Registry interface {
	// Connect adds connID to the user's live set. first is true when the set was empty.
	Connect(ctx context.Context, userID, connID string) (first bool, err error)

	// Disconnect removes connID. last is true when this removal emptied the set.
	// Removing an unknown connID reports false.
	Disconnect(ctx context.Context, userID, connID string) (last bool, err error)

	// Refresh extends the lease of a live connection, re-adding it if the sweeper
	// already dropped it. first is true when the re-add took the set from empty.
	Refresh(ctx context.Context, userID, connID string) (first bool, err error)

	// Reap drops connections whose lease expired and returns the users that went offline.
	Reap(ctx context.Context) ([]string, error)

	// Online reports which of userIDs currently have a live connection.
	Online(ctx context.Context, userIDs ...string) (map[string]bool, error)
}
