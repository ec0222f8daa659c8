// internal/types/interfaces.go
package types

import (
	"context"
)

// EventHandler receives events emitted by an adapter. It must not block for
// long; the gateway enqueues and returns.
type EventHandler func(ctx context.Context, event *Event)

// Adapter is one platform side of the bridge. Run produces inbound events
// until ctx is done; Send accepts an outbound message addressed to msg.To.
type Adapter interface {
	Name() string
	Run(ctx context.Context, emit EventHandler) error
	Send(ctx context.Context, msg *Message) error
}

// Notifier is implemented by adapters that have an operator to report
// delivery failures to.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Directory lists the conversations an adapter can address.
type Directory interface {
	Contacts() []Contact
}
