// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/user/wechatgram/internal/types"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotKey types.PeerKey
	var gotMsg *types.Message
	reg.Register("test:", func(_ context.Context, key types.PeerKey, msg *types.Message) error {
		gotKey = key
		gotMsg = msg
		return nil
	})

	msg := &types.Message{Kind: types.KindText, Text: "hello"}
	err := reg.Deliver(context.Background(), "test:123", msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "test:123" {
		t.Errorf("expected peer key %q, got %q", "test:123", gotKey)
	}
	if gotMsg != msg {
		t.Errorf("expected message to be passed through, got %+v", gotMsg)
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	err := reg.Deliver(context.Background(), "unknown:123", &types.Message{})
	if err == nil {
		t.Fatal("expected error for unregistered prefix, got nil")
	}
	if reg.Has("unknown:123") {
		t.Error("Has should be false without handlers")
	}
}

func TestRegistryMultiplePrefixes(t *testing.T) {
	reg := NewRegistry()

	var telegramCalls, wechatCalls int
	reg.Register("telegram:", func(context.Context, types.PeerKey, *types.Message) error {
		telegramCalls++
		return nil
	})
	reg.Register("wechat:", func(context.Context, types.PeerKey, *types.Message) error {
		wechatCalls++
		return nil
	})

	ctx := context.Background()
	if err := reg.Deliver(ctx, "telegram:42", &types.Message{}); err != nil {
		t.Fatalf("telegram deliver error: %v", err)
	}
	if err := reg.Deliver(ctx, "wechat:@@room", &types.Message{}); err != nil {
		t.Fatalf("wechat deliver error: %v", err)
	}

	if telegramCalls != 1 {
		t.Errorf("expected 1 telegram call, got %d", telegramCalls)
	}
	if wechatCalls != 1 {
		t.Errorf("expected 1 wechat call, got %d", wechatCalls)
	}
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	reg := NewRegistry()
	var hit string
	reg.Register("wechat:", func(context.Context, types.PeerKey, *types.Message) error {
		hit = "any"
		return nil
	})
	reg.Register("wechat:@@", func(context.Context, types.PeerKey, *types.Message) error {
		hit = "group"
		return nil
	})

	if err := reg.Deliver(context.Background(), "wechat:@@room", &types.Message{}); err != nil {
		t.Fatal(err)
	}
	if hit != "group" {
		t.Errorf("expected group handler, got %q", hit)
	}
}

type stubAdapter struct {
	sent []*types.Message
	err  error
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) Run(context.Context, types.EventHandler) error { return nil }

func (s *stubAdapter) Send(_ context.Context, msg *types.Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestRegistryAdapter(t *testing.T) {
	reg := NewRegistry()
	a := &stubAdapter{err: errors.New("boom")}
	reg.RegisterAdapter(a)

	err := reg.Deliver(context.Background(), types.NewPeerKey("stub", "x"), &types.Message{Text: "hi"})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected adapter error, got %v", err)
	}
	if len(a.sent) != 1 || a.sent[0].Text != "hi" {
		t.Errorf("adapter did not receive message: %+v", a.sent)
	}
}
