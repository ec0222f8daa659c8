package config

import (
	"testing"
)

func TestFlatten_Simple(t *testing.T) {
	m := map[string]any{
		"a": "hello",
		"b": 42.0,
	}
	got := Flatten(m)
	if got["a"] != "hello" {
		t.Errorf("expected a=hello, got %v", got["a"])
	}
	if got["b"] != 42.0 {
		t.Errorf("expected b=42, got %v", got["b"])
	}
	if len(got) != 2 {
		t.Errorf("expected 2 keys, got %d", len(got))
	}
}

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"wechat": map[string]any{
			"base_url":    "https://wx.example.com",
			"retry_limit": 3.0,
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["wechat.base_url"] != "https://wx.example.com" {
		t.Errorf("expected wechat.base_url, got %v", got["wechat.base_url"])
	}
	if got["wechat.retry_limit"] != 3.0 {
		t.Errorf("expected wechat.retry_limit=3, got %v", got["wechat.retry_limit"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}
	got := Flatten(m)
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestUnflatten_Nested(t *testing.T) {
	got := Unflatten(map[string]any{
		"telegram.token":   "bot-token",
		"telegram.chat_id": 42.0,
		"log_level":        "debug",
	})
	tg, ok := got["telegram"].(map[string]any)
	if !ok {
		t.Fatalf("expected telegram to be map, got %T", got["telegram"])
	}
	if tg["token"] != "bot-token" {
		t.Errorf("expected telegram.token=bot-token, got %v", tg["token"])
	}
	if tg["chat_id"] != 42.0 {
		t.Errorf("expected telegram.chat_id=42, got %v", tg["chat_id"])
	}
	if got["log_level"] != "debug" {
		t.Errorf("expected log_level=debug, got %v", got["log_level"])
	}
}

func TestUnflatten_EmptyMap(t *testing.T) {
	got := Unflatten(map[string]any{})
	if len(got) != 0 {
		t.Errorf("expected 0 keys, got %d", len(got))
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir": "/home/test/.wechatgram",
		"wechat": map[string]any{
			"user_agent": "test-agent",
			"ext_spam":   "spam-token",
		},
		"state": map[string]any{
			"checkpoint_schedule": "@every 1m",
		},
	}

	restored := Unflatten(Flatten(original))

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}
	wc := restored["wechat"].(map[string]any)
	if wc["user_agent"] != "test-agent" || wc["ext_spam"] != "spam-token" {
		t.Errorf("wechat mismatch: %v", wc)
	}
	st := restored["state"].(map[string]any)
	if st["checkpoint_schedule"] != "@every 1m" {
		t.Errorf("state.checkpoint_schedule mismatch: %v", st["checkpoint_schedule"])
	}
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"wechat.base_url": "https://wx.example.com",
		"telegram.token":  "123456:ABCDEF",
		"wechat.ext_spam": "xyz",
	}
	got := MaskSecrets(flat)
	if got["wechat.base_url"] != "https://wx.example.com" {
		t.Errorf("non-secret was masked: %v", got["wechat.base_url"])
	}
	if got["telegram.token"] != "***CDEF" {
		t.Errorf("expected ***CDEF, got %v", got["telegram.token"])
	}
	if got["wechat.ext_spam"] != "***xyz" {
		t.Errorf("expected ***xyz for short secret, got %v", got["wechat.ext_spam"])
	}
	if flat["telegram.token"] != "123456:ABCDEF" {
		t.Error("MaskSecrets modified its input")
	}
}

func TestMaskSecrets_EmptyValue(t *testing.T) {
	got := MaskSecrets(map[string]any{"telegram.token": ""})
	if got["telegram.token"] != "" {
		t.Errorf("expected empty string to remain empty, got %v", got["telegram.token"])
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("telegram.token") {
		t.Error("telegram.token should be secret")
	}
	if IsSecretKey("telegram.chat_id") {
		t.Error("telegram.chat_id should not be secret")
	}
}
