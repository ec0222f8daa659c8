package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/user/wechatgram/internal/types"
)

const (
	testUUID   = "uuid-1"
	testSelf   = "@self"
	testSelfID = 4242
)

// fakeServer stands in for the login, base, push and file hosts, each
// under its own path prefix.
type fakeServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	handlers map[string]http.HandlerFunc
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		hits:     make(map[string]int),
		handlers: make(map[string]http.HandlerFunc),
	}
	f.srv = httptest.NewTLSServer(f)
	t.Cleanup(f.srv.Close)

	f.handle("/login/jslogin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `window.QRLogin.code = 200; window.QRLogin.uuid = "%s";`, testUUID)
	})
	f.handle("/login/qrcode/"+testUUID, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("qr-image"))
	})
	f.handle("/login/cgi-bin/mmwebwx-bin/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "window.code=200;\nwindow.redirect_uri=\"%s/base/webwxnewloginpage?ticket=T1&uuid=%s&lang=zh_CN&scan=1\";", f.srv.URL, testUUID)
	})
	f.handle("/base/webwxnewloginpage", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "wxuin", Value: "4242", Path: "/"})
		io.WriteString(w, `<error><ret>0</ret><message></message><skey>@crypt_sk</skey><wxsid>sid-1</wxsid><wxuin>4242</wxuin><pass_ticket>pt-1</pass_ticket><isgrayscale>1</isgrayscale></error>`)
	})
	f.handle("/base/webwxinit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"BaseResponse": map[string]any{"Ret": 0, "ErrMsg": ""},
			"User":         map[string]any{"Uin": testSelfID, "UserName": testSelf, "NickName": "Me"},
			"SyncKey":      json.RawMessage(`{"Count":1,"List":[{"Key":1,"Val":100}]}`),
		})
	})
	f.handle("/base/webwxgetcontact", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"BaseResponse": map[string]any{"Ret": 0},
			"MemberList":   []map[string]any{{"UserName": "@alice", "NickName": "Alice"}},
			"Seq":          0,
		})
	})
	f.handle("/base/webwxstatusnotify", okStatus)
	f.handle("/push/synccheck", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `window.synccheck={retcode:"0",selector:"0"}`)
	})
	return f
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	h := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeServer) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeServer) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeServer) config() Config {
	return Config{
		LoginURL:     f.srv.URL + "/login",
		BaseURL:      f.srv.URL + "/base",
		PushURL:      f.srv.URL + "/push",
		FileURL:      f.srv.URL + "/file",
		RetryDelay:   time.Millisecond,
		PollInterval: time.Millisecond,
		SyncInterval: time.Millisecond,
		Transport:    f.srv.Client().Transport,
		AvatarClient: f.srv.Client(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func okStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"BaseResponse": map[string]any{"Ret": 0, "ErrMsg": ""}})
}

func failStatus(ret int, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"BaseResponse": map[string]any{"Ret": ret, "ErrMsg": msg}})
	}
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []*types.Event
	notify chan *types.Event
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan *types.Event, 256)}
}

func (r *recorder) handle(_ context.Context, e *types.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- e:
	default:
	}
}

func (r *recorder) messages() []*types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Message
	for _, e := range r.events {
		if e.Message != nil {
			out = append(out, e.Message)
		}
	}
	return out
}

func (r *recorder) eventTypes() []types.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// waitFor blocks until an event of type typ arrives.
func (r *recorder) waitFor(t *testing.T, typ types.EventType) *types.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.notify:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event; saw %v", typ, r.eventTypes())
			return nil
		}
	}
}

// newTestClient builds a client against f. When loggedIn is set it starts
// with a valid session and an initialized profile.
func newTestClient(t *testing.T, f *fakeServer, loggedIn bool) (*Client, *recorder) {
	t.Helper()
	c, err := New(f.config(), nil)
	if err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	c.emit = rec.handle
	if loggedIn {
		c.session = Session{SKey: "@crypt_sk", Uin: "4242", SID: "sid-1", Ticket: "pt-1", Valid: true}
		c.user = Contact{Uin: testSelfID, UserName: testSelf, NickName: "Me"}
		c.contacts.Merge(c.user)
		c.state = StateInitialized
	}
	return c, rec
}
