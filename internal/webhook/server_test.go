package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/wechatgram/internal/scheduler"
	"github.com/user/wechatgram/internal/types"
	"github.com/user/wechatgram/internal/wechat"
)

type stubStatus struct{ st wechat.Status }

func (s stubStatus) Status() wechat.Status { return s.st }

type stubDirectory []types.Contact

func (d stubDirectory) Contacts() []types.Contact { return d }

type stubFailures struct {
	recs []*types.DeliveryFailure
	err  error
	last int
}

func (s *stubFailures) Tail(limit int) ([]*types.DeliveryFailure, error) {
	s.last = limit
	return s.recs, s.err
}

type stubDispatcher struct {
	events []*types.Event
	err    error
}

func (s *stubDispatcher) Dispatch(e *types.Event) error {
	s.events = append(s.events, e)
	return s.err
}

type stubJobs []scheduler.Entry

func (j stubJobs) Entries() []scheduler.Entry { return j }

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(Options{})
	w := do(t, srv, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	failures := &stubFailures{recs: []*types.DeliveryFailure{{Seq: 3, Target: "wechat", Error: "boom"}}}
	srv := NewServer(Options{
		Status:   stubStatus{wechat.Status{State: "initialized", Valid: true, User: "@me", Contacts: 12}},
		Failures: failures,
		Jobs:     stubJobs{{Name: "checkpoint", Next: time.Unix(100, 0).UTC()}},
	})
	w := do(t, srv, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.WeChat == nil || resp.WeChat.State != "initialized" || resp.WeChat.Contacts != 12 {
		t.Errorf("unexpected wechat status %+v", resp.WeChat)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].Name != "checkpoint" {
		t.Errorf("unexpected jobs %+v", resp.Jobs)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].Seq != 3 {
		t.Errorf("unexpected failures %+v", resp.Failures)
	}
	if failures.last != 10 {
		t.Errorf("expected tail of 10, got %d", failures.last)
	}
}

func TestStatusEndpointEmpty(t *testing.T) {
	w := do(t, NewServer(Options{}), http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"jobs":[]`) || !strings.Contains(w.Body.String(), `"recent_failures":[]`) {
		t.Errorf("expected empty lists, got %s", w.Body.String())
	}
}

func TestContactsEndpoint(t *testing.T) {
	srv := NewServer(Options{Contacts: stubDirectory{
		{ID: "@alice", DisplayName: "Alice"},
		{ID: "@@family", DisplayName: "Family Chat", Group: true},
		{ID: "@bob", DisplayName: "Bob"},
	}})

	var all []types.Contact
	w := do(t, srv, http.MethodGet, "/api/contacts", "")
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 contacts, got %d", len(all))
	}

	var filtered []types.Contact
	w = do(t, srv, http.MethodGet, "/api/contacts?q=ALI", "")
	if err := json.NewDecoder(w.Body).Decode(&filtered); err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != "@alice" {
		t.Errorf("unexpected filter result %+v", filtered)
	}

	var groups []types.Contact
	w = do(t, srv, http.MethodGet, "/api/contacts?groups=only", "")
	if err := json.NewDecoder(w.Body).Decode(&groups); err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || !groups[0].Group {
		t.Errorf("unexpected groups %+v", groups)
	}
}

func TestContactsUnavailable(t *testing.T) {
	w := do(t, NewServer(Options{}), http.MethodGet, "/api/contacts", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestFailuresEndpoint(t *testing.T) {
	failures := &stubFailures{}
	srv := NewServer(Options{Failures: failures})

	w := do(t, srv, http.MethodGet, "/api/failures?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", w.Body.String())
	}
	if failures.last != 5 {
		t.Errorf("expected limit 5, got %d", failures.last)
	}

	failures.err = errors.New("disk")
	w = do(t, srv, http.MethodGet, "/api/failures", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestSendEndpoint(t *testing.T) {
	disp := &stubDispatcher{}
	srv := NewServer(Options{
		Status:     stubStatus{wechat.Status{Valid: true}},
		Dispatcher: disp,
	})

	w := do(t, srv, http.MethodPost, "/api/send", `{"to":"@alice","text":"hi"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(disp.events) != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", len(disp.events))
	}
	ev := disp.events[0]
	if ev.Source != Source || ev.Message.Kind != types.KindText || ev.Message.To != "@alice" || ev.Message.Peer != "@alice" || ev.Message.Text != "hi" {
		t.Errorf("unexpected event %+v / %+v", ev, ev.Message)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["event_id"] != string(ev.ID) {
		t.Errorf("expected event id %s, got %s", ev.ID, resp["event_id"])
	}
}

func TestSendEndpointErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		body string
		code int
	}{
		{"no dispatcher", Options{}, `{"to":"@a","text":"x"}`, http.StatusServiceUnavailable},
		{"bad json", Options{Dispatcher: &stubDispatcher{}}, `{`, http.StatusBadRequest},
		{"missing text", Options{Dispatcher: &stubDispatcher{}}, `{"to":"@a"}`, http.StatusBadRequest},
		{"logged out", Options{Dispatcher: &stubDispatcher{}, Status: stubStatus{}}, `{"to":"@a","text":"x"}`, http.StatusServiceUnavailable},
		{"dispatch fails", Options{Dispatcher: &stubDispatcher{err: errors.New("full")}}, `{"to":"@a","text":"x"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, NewServer(tt.opts), http.MethodPost, "/api/send", tt.body)
			if w.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, w.Code)
			}
		})
	}
}

func TestSendRequiresPost(t *testing.T) {
	w := do(t, NewServer(Options{Dispatcher: &stubDispatcher{}}), http.MethodGet, "/api/send", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
