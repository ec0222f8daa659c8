// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewEventID(t *testing.T) {
	id := NewEventID()
	if id == "" {
		t.Error("expected non-empty EventID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
	if NewEventID() == id {
		t.Error("expected distinct ids")
	}
}

func TestPeerKeyFormat(t *testing.T) {
	key := NewPeerKey("wechat", "@@abc")
	expected := PeerKey("wechat:@@abc")
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}
}
