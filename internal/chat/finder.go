package chat

import "context"

// Finder answers whether two users share an active conversation.
// A call must never be created without one; the chat message path itself is
// owned by a different service and is out of scope here.
type Finder interface {
	// FindActiveBetween returns the chat id shared by the two users, if any.
	// Participant order does not matter.
	FindActiveBetween(ctx context.Context, userA, userB string) (string, bool, error)
}
