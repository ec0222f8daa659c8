// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type EventID string
type DeliveryID string
type PeerKey string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewDeliveryID() DeliveryID {
	return DeliveryID(uuid.New().String())
}

// NewPeerKey joins an adapter name and a conversation id, e.g. "wechat:@@abc".
func NewPeerKey(parts ...string) PeerKey {
	return PeerKey(strings.Join(parts, ":"))
}
