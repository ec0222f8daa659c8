package wechat

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/user/wechatgram/internal/types"
)

func TestSplitGroupSender(t *testing.T) {
	tests := []struct {
		in, sender, rest string
		ok               bool
	}{
		{"alice:<br/>hello", "alice", "hello", true},
		{"@abc123:<br/>hi<br/>there", "@abc123", "hi<br/>there", true},
		{"wxid_a-b:<br/>x", "wxid_a-b", "x", true},
		{"@a_b:<br/>x", "", "@a_b:<br/>x", false},
		{"no prefix", "", "no prefix", false},
		{"two words:<br/>x", "", "two words:<br/>x", false},
		{":<br/>x", "", ":<br/>x", false},
	}
	for _, tt := range tests {
		sender, rest, ok := splitGroupSender(tt.in)
		if sender != tt.sender || rest != tt.rest || ok != tt.ok {
			t.Errorf("splitGroupSender(%q) = %q, %q, %v", tt.in, sender, rest, ok)
		}
	}
}

func decodeOne(t *testing.T, c *Client, rec *recorder, raw RawMessage) (*types.Message, error) {
	t.Helper()
	before := len(rec.messages())
	err := c.process(context.Background(), &raw)
	msgs := rec.messages()
	if len(msgs) == before {
		return nil, err
	}
	return msgs[len(msgs)-1], err
}

func TestProcessTaxonomy(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/base/webwxgetmsgimg", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("skey") != "@crypt_sk" {
			t.Errorf("expected skey on media fetch")
		}
		w.Write([]byte("img:" + r.URL.Query().Get("msgid")))
	})
	f.handle("/base/webwxgetvoice", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("voice:" + r.URL.Query().Get("msgid")))
	})
	f.handle("/base/webwxgetvideo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-" {
			http.Error(w, "range required", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("video:" + r.URL.Query().Get("msgid")))
	})
	f.handle("/file/webwxgetmedia", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sender") != "@alice" || q.Get("mediaid") != "m-1" || q.Get("encryfilename") != "enc" || q.Get("fromuser") != "4242" || q.Get("pass_ticket") != "pt-1" {
			t.Errorf("unexpected media query %v", q)
		}
		w.Write([]byte("%PDF"))
	})
	f.handle("/avatar", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("avatar"))
	})

	c, rec := newTestClient(t, f, true)
	c.contacts.Merge(Contact{UserName: "@alice", NickName: "Alice", RemarkName: "Ally"})
	avatarURL := "http" + f.srv.URL[len("https"):] + "/avatar"

	tests := []struct {
		name     string
		raw      RawMessage
		kind     types.Kind
		text     string
		data     string
		filename string
	}{
		{"text", RawMessage{MsgID: "1", MsgType: MsgText, Content: "hi &amp; bye<br/>ok"}, types.KindText, "hi & bye\nok", "", ""},
		{"image", RawMessage{MsgID: "2", MsgType: MsgImage}, types.KindPhoto, "", "img:2", ""},
		{"voice", RawMessage{MsgID: "3", MsgType: MsgVoice}, types.KindVoice, "", "voice:3", ""},
		{"video", RawMessage{MsgID: "4", MsgType: MsgVideo}, types.KindVideo, "", "video:4", ""},
		{"micro video", RawMessage{MsgID: "5", MsgType: MsgMicroVideo}, types.KindVideo, "", "video:5", ""},
		{"emoticon", RawMessage{MsgID: "6", MsgType: MsgEmoticon}, types.KindPhoto, "", "img:6", ""},
		{"purchased sticker", RawMessage{MsgID: "7", MsgType: MsgEmoticon, HasProductID: 1}, types.KindText, unsupportedSticker, "", ""},
		{"app image", RawMessage{MsgID: "8", MsgType: MsgApp, AppMsgType: AppImage}, types.KindPhoto, "", "img:8", ""},
		{"app emoji", RawMessage{MsgID: "9", MsgType: MsgApp, AppMsgType: AppEmoji}, types.KindPhoto, "", "img:9", ""},
		{"attachment", RawMessage{MsgID: "10", MsgType: MsgApp, AppMsgType: AppAttach, FileName: "report.pdf", MediaID: "m-1", EncryFileName: "enc"}, types.KindDocument, "", "%PDF", "report.pdf"},
		{"subtype forces app", RawMessage{MsgID: "11", MsgType: MsgText, AppMsgType: AppURL}, types.KindText, unknownMessage, "", ""},
		{"transfer", RawMessage{MsgID: "12", MsgType: MsgApp, AppMsgType: AppTransfers}, types.KindText, unknownMessage, "", ""},
		{"red envelope", RawMessage{MsgID: "13", MsgType: MsgApp, AppMsgType: AppRedEnvelopes}, types.KindText, unknownMessage, "", ""},
		{"share card", RawMessage{MsgID: "14", MsgType: MsgShareCard, Content: `&lt;?xml version="1.0"?&gt;&lt;msg bigheadimgurl="` + avatarURL + `" username="wxid_bob" nickname="Bob" /&gt;`}, types.KindPhoto, "", "avatar", "User Card: Bob"},
		{"system", RawMessage{MsgID: "15", MsgType: MsgSys, Content: "Alice joined the group"}, types.KindText, "Alice joined the group", "", ""},
		{"voip", RawMessage{MsgID: "16", MsgType: MsgVoipInvite}, types.KindText, unknownMessage, "", ""},
		{"verify", RawMessage{MsgID: "17", MsgType: MsgVerify}, types.KindText, unknownMessage, "", ""},
		{"unmapped", RawMessage{MsgID: "18", MsgType: 12345}, types.KindText, unknownMessage, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.raw.FromUserName, tt.raw.ToUserName = "@alice", testSelf
			msg, err := decodeOne(t, c, rec, tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if msg == nil {
				t.Fatal("expected an event")
			}
			if msg.Kind != tt.kind || msg.Text != tt.text || string(msg.Data) != tt.data || msg.Filename != tt.filename {
				t.Errorf("got kind=%s text=%q data=%q filename=%q", msg.Kind, msg.Text, msg.Data, msg.Filename)
			}
			if msg.From != "Ally" || msg.To != "Me" || msg.Peer != "@alice" {
				t.Errorf("unexpected addressing from=%q to=%q peer=%q", msg.From, msg.To, msg.Peer)
			}
		})
	}
}

func TestProcessLocation(t *testing.T) {
	f := newFakeServer(t)
	c, rec := newTestClient(t, f, true)

	for _, raw := range []RawMessage{
		{MsgType: MsgText, SubMsgType: MsgLocation, Content: "Somewhere", OriContent: `<?xml version="1.0"?><msg><location x="12.3" y="45.6" scale="15" label="Somewhere"/></msg>`},
		{MsgType: MsgLocation, Content: `&lt;msg&gt;&lt;location x="12.3" y="45.6" /&gt;&lt;/msg&gt;`},
		{MsgType: MsgText, SubMsgType: MsgLocation, OriContent: `x="12.3" y="45.6"`},
	} {
		raw.FromUserName, raw.ToUserName = "@alice", testSelf
		msg, err := decodeOne(t, c, rec, raw)
		if err != nil {
			t.Fatalf("%+v: %v", raw, err)
		}
		if msg == nil || msg.Kind != types.KindLocation || msg.Location == nil {
			t.Fatalf("expected a location, got %+v", msg)
		}
		if msg.Location.X != 12.3 || msg.Location.Y != 45.6 {
			t.Errorf("expected (12.3, 45.6), got %+v", msg.Location)
		}
	}
}

func TestProcessDroppedTypes(t *testing.T) {
	f := newFakeServer(t)
	c, rec := newTestClient(t, f, true)
	for _, typ := range []MsgType{MsgStatusNotify, MsgRecalled, MsgSysNotice} {
		msg, err := decodeOne(t, c, rec, RawMessage{MsgType: typ, FromUserName: "@alice", ToUserName: testSelf})
		if err != nil || msg != nil {
			t.Errorf("type %d: expected silent drop, got %+v, %v", typ, msg, err)
		}
	}
}

func TestProcessOwnMessageUsesRecipientAsPeer(t *testing.T) {
	f := newFakeServer(t)
	c, rec := newTestClient(t, f, true)
	msg, err := decodeOne(t, c, rec, RawMessage{MsgType: MsgText, FromUserName: testSelf, ToUserName: "@alice", Content: "sent from phone"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Peer != "@alice" || msg.From != "Me" {
		t.Errorf("unexpected addressing %+v", msg)
	}
}

func TestProcessGroupMessage(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/base/webwxbatchgetcontact", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"BaseResponse": map[string]any{"Ret": 0},
			"ContactList": []Contact{{UserName: "alice", NickName: "Alice"}}})
	})
	c, rec := newTestClient(t, f, true)
	c.contacts.Merge(Contact{UserName: "@@team", NickName: "Team", EncryChatRoomID: "room"})

	msg, err := decodeOne(t, c, rec, RawMessage{MsgType: MsgText, FromUserName: "@@team", ToUserName: testSelf, Content: "alice:<br/>hello"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "hello" {
		t.Errorf("expected stripped content, got %q", msg.Text)
	}
	if msg.From != "Alice" || msg.To != "Team" || msg.Peer != "@@team" {
		t.Errorf("unexpected addressing from=%q to=%q peer=%q", msg.From, msg.To, msg.Peer)
	}
	if f.count("/base/webwxbatchgetcontact") != 1 {
		t.Errorf("expected one member lookup, got %d", f.count("/base/webwxbatchgetcontact"))
	}

	// the member is now known; no further lookups
	if _, err := decodeOne(t, c, rec, RawMessage{MsgType: MsgText, FromUserName: "@@team", ToUserName: testSelf, Content: "alice:<br/>again"}); err != nil {
		t.Fatal(err)
	}
	if f.count("/base/webwxbatchgetcontact") != 1 {
		t.Errorf("expected cached member, got %d lookups", f.count("/base/webwxbatchgetcontact"))
	}
}

func TestProcessGroupLookupFailure(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/base/webwxbatchgetcontact", failStatus(1, "nope"))
	c, rec := newTestClient(t, f, true)
	msg, err := decodeOne(t, c, rec, RawMessage{MsgType: MsgText, FromUserName: "@@unknown", ToUserName: testSelf, Content: "bob:<br/>hi"})
	var dirErr *DirectoryError
	if !errors.As(err, &dirErr) {
		t.Fatalf("expected DirectoryError, got %v", err)
	}
	if msg != nil {
		t.Errorf("expected the message to be dropped, got %+v", msg)
	}
	if !c.Session().Valid {
		t.Error("a directory failure must not invalidate the session")
	}
}

func TestProcessMediaFailureDropsMessage(t *testing.T) {
	f := newFakeServer(t)
	c, rec := newTestClient(t, f, true)
	msg, err := decodeOne(t, c, rec, RawMessage{MsgID: "x", MsgType: MsgImage, FromUserName: "@alice", ToUserName: testSelf})
	if err == nil || msg != nil {
		t.Errorf("expected a dropped message with error, got %+v, %v", msg, err)
	}
	if !c.Session().Valid {
		t.Error("a media failure must not invalidate the session")
	}
}

func TestFlattenNotice(t *testing.T) {
	if got := flattenNotice("plain"); got != "plain" {
		t.Errorf("unexpected %q", got)
	}
	got := flattenNotice(`You recalled a message <a href="weixin://revoke">Edit</a>`)
	if got == "" || got[0] != 'Y' {
		t.Errorf("unexpected flattened notice %q", got)
	}
}
