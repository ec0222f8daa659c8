// internal/types/models.go
package types

import (
	"time"
)

// Kind classifies the payload of a Message.
type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindVoice    Kind = "voice"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindLocation Kind = "location"
	KindSticker  Kind = "sticker"
)

// EventType names everything an adapter can surface. Message events carry
// a Message; lifecycle events carry none.
type EventType string

const (
	EventText     EventType = "text"
	EventPhoto    EventType = "photo"
	EventVoice    EventType = "voice"
	EventVideo    EventType = "video"
	EventDocument EventType = "document"
	EventLocation EventType = "location"
	EventSticker  EventType = "sticker"

	EventLaunch   EventType = "launch"
	EventLoggedIn EventType = "loggedIn"
	EventScanning EventType = "scanning"
	EventScanned  EventType = "scanned"
)

// Point is a pair of coordinates as reported by the source platform.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Message is a self-contained normalized message. Peer is the conversation
// the message belongs to and differs from From/To inside groups.
type Message struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	Data     []byte `json:"-"`
	Filename string `json:"filename,omitempty"`
	Location *Point `json:"location,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"`
	Peer     string `json:"peer"`
}

// Event is what an adapter emits.
type Event struct {
	ID      EventID   `json:"id"`
	Type    EventType `json:"type"`
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
	Message *Message  `json:"message,omitempty"`
}

// NewEvent wraps msg in an Event whose type follows the message kind.
func NewEvent(source string, msg *Message) *Event {
	return &Event{
		ID:      NewEventID(),
		Type:    EventType(msg.Kind),
		Source:  source,
		At:      time.Now(),
		Message: msg,
	}
}

// NewLifecycleEvent builds a message-less event.
func NewLifecycleEvent(source string, typ EventType) *Event {
	return &Event{
		ID:     NewEventID(),
		Type:   typ,
		Source: source,
		At:     time.Now(),
	}
}

// IsLifecycle reports whether the event carries no message.
func (e *Event) IsLifecycle() bool {
	switch e.Type {
	case EventLaunch, EventLoggedIn, EventScanning, EventScanned:
		return true
	}
	return false
}

// Contact is the neutral view of a directory entry offered to other adapters.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Group       bool   `json:"group"`
}

// DeliveryFailure records an event one adapter emitted that the other could
// not accept. It carries no message content.
type DeliveryFailure struct {
	ID      DeliveryID `json:"id"`
	Seq     int64      `json:"seq"`
	EventID EventID    `json:"event_id"`
	Source  string     `json:"source"`
	Target  string     `json:"target"`
	Kind    Kind       `json:"kind"`
	Peer    string     `json:"peer,omitempty"`
	Error   string     `json:"error"`
	At      time.Time  `json:"at"`
}
