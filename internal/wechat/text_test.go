package wechat

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"sprite", `hi <span class="emoji emoji1f604"></span>`, "hi 😄"},
		{"substituted sprite", `<span class="emoji emoji1f63c"></span>`, "😁"},
		{"flag", `<span class="emoji emoji1f1e8-1f1f3"></span>`, "🇨🇳"},
		{"bad sprite kept", `<span class="emoji emojizz"></span>`, `<span class="emoji emojizz"></span>`},
		{"face", "ok&lt;强&gt;", "ok👍"},
		{"unknown face kept", "&lt;nope&gt;", "&lt;nope&gt;"},
		{"web suffix kept", "&lt;强&gt;_web", "&lt;强&gt;_web"},
		{"two faces", "&lt;心&gt;&lt;火&gt;", "❤🔥"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeContent(t *testing.T) {
	got := decodeContent("a &amp; b<br/>c &lt;d&gt;")
	if got != "a & b\nc <d>" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestIsGroup(t *testing.T) {
	for name, want := range map[string]bool{
		"@@abc":           true,
		"123@chatroom":    true,
		"@abc":            false,
		"wxid_alice":      false,
		"filehelper":      false,
		"chatroom@nobody": false,
	} {
		if got := IsGroup(name); got != want {
			t.Errorf("IsGroup(%q) = %v, want %v", name, got, want)
		}
	}
}
