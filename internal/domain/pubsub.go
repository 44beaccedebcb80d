package domain

import "context"

// Publisher is the single entry point for publishing a message to its
// channel, used by client sessions and upstream producers alike.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) (int, error)
}

// EventArchiver persists delivered events. Implementations must not block
// the caller.
type EventArchiver interface {
	Archive(msg *Message)
}

// Relay forwards locally originated messages to peer gateway instances.
// Forward must not block the caller.
type Relay interface {
	Forward(msg *Message)
}
