// internal/webhook/server.go
package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/wechatgram/internal/scheduler"
	"github.com/user/wechatgram/internal/types"
	"github.com/user/wechatgram/internal/wechat"
)

// Source is the adapter name events submitted over HTTP carry.
const Source = "http"

// StatusSource is implemented by *wechat.Client.
type StatusSource interface {
	Status() wechat.Status
}

// Failures is implemented by *state.Journal.
type Failures interface {
	Tail(limit int) ([]*types.DeliveryFailure, error)
}

// Dispatcher is implemented by *gateway.Gateway.
type Dispatcher interface {
	Dispatch(event *types.Event) error
}

// Jobs is implemented by *scheduler.Scheduler.
type Jobs interface {
	Entries() []scheduler.Entry
}

// Options wires the server to the running daemon. Nil fields disable the
// endpoints that need them.
type Options struct {
	Status     StatusSource
	Contacts   types.Directory
	Failures   Failures
	Dispatcher Dispatcher
	Jobs       Jobs
}

// Server is a lightweight HTTP handler for the local status API.
type Server struct {
	opts Options
	mux  *http.ServeMux
}

// NewServer creates a new Server.
func NewServer(opts Options) *Server {
	s := &Server{
		opts: opts,
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/contacts", s.handleContacts)
	s.mux.HandleFunc("GET /api/failures", s.handleFailures)
	s.mux.HandleFunc("POST /api/send", s.handleSend)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	WeChat   *wechat.Status           `json:"wechat,omitempty"`
	Jobs     []scheduler.Entry        `json:"jobs"`
	Failures []*types.DeliveryFailure `json:"recent_failures"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Jobs:     []scheduler.Entry{},
		Failures: []*types.DeliveryFailure{},
	}
	if s.opts.Status != nil {
		st := s.opts.Status.Status()
		resp.WeChat = &st
	}
	if s.opts.Jobs != nil {
		if entries := s.opts.Jobs.Entries(); entries != nil {
			resp.Jobs = entries
		}
	}
	if s.opts.Failures != nil {
		recs, err := s.opts.Failures.Tail(10)
		if err != nil {
			slog.Error("tail delivery failures", "error", err)
		} else if recs != nil {
			resp.Failures = recs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleContacts lists the directory, optionally filtered by a
// case-insensitive substring of the id or display name.
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if s.opts.Contacts == nil {
		writeError(w, http.StatusServiceUnavailable, "contacts not available")
		return
	}
	q := strings.ToLower(r.URL.Query().Get("q"))
	groups := r.URL.Query().Get("groups")

	result := []types.Contact{}
	for _, c := range s.opts.Contacts.Contacts() {
		if q != "" && !strings.Contains(strings.ToLower(c.DisplayName), q) && !strings.Contains(strings.ToLower(c.ID), q) {
			continue
		}
		if (groups == "only" && !c.Group) || (groups == "none" && c.Group) {
			continue
		}
		result = append(result, c)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	if s.opts.Failures == nil {
		writeError(w, http.StatusServiceUnavailable, "failure journal not configured")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := s.opts.Failures.Tail(limit)
	if err != nil {
		slog.Error("tail delivery failures", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if recs == nil {
		recs = []*types.DeliveryFailure{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// sendRequest is the JSON body for POST /api/send.
type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.opts.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "sending not configured")
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.To == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "to and text are required")
		return
	}
	if s.opts.Status != nil && !s.opts.Status.Status().Valid {
		writeError(w, http.StatusServiceUnavailable, "not logged in")
		return
	}

	event := types.NewEvent(Source, &types.Message{
		Kind: types.KindText,
		Text: req.Text,
		To:   req.To,
		Peer: req.To,
	})
	if err := s.opts.Dispatcher.Dispatch(event); err != nil {
		slog.Error("dispatch http send", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": string(event.ID)})
}
