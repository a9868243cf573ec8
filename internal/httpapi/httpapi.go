// Package httpapi serves the bridge's read-only HTTP surface: status and
// child listings, the per-child event query, an ICS calendar feed and a
// WebSocket stream of snapshot updates.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trymwestin/huckleberry/internal/core/auth"
	"github.com/trymwestin/huckleberry/internal/core/events"
	"github.com/trymwestin/huckleberry/internal/core/state"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
	"github.com/trymwestin/huckleberry/internal/metrics"
)

// eventUIDNamespace seeds the deterministic VEVENT UIDs so repeated fetches
// of the same record produce the same UID.
var eventUIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/trymwestin/huckleberry"))

// TokenSource reports the current auth session, refreshing when needed.
type TokenSource interface {
	Token(ctx context.Context) (auth.Session, error)
}

// CalendarSource answers event queries for one child.
type CalendarSource interface {
	Events(ctx context.Context, start, end time.Time) []events.Event
	NextUpcoming() (events.Event, bool)
}

// Window is the default query window applied when a request gives no range.
type Window struct {
	Back    time.Duration
	Forward time.Duration
}

// Server is the HTTP API server.
type Server struct {
	store     state.StateReader
	bus       *state.EventBus
	children  []tracker.Child
	calendars map[string]CalendarSource
	tokens    TokenSource
	window    Window
	loc       *time.Location
	corsAll   bool
	log       *slog.Logger
	mux       *http.ServeMux
	upgrader  websocket.Upgrader
}

// NewServer creates a new HTTP API server.
func NewServer(
	store state.StateReader,
	bus *state.EventBus,
	children []tracker.Child,
	calendars map[string]CalendarSource,
	tokens TokenSource,
	window Window,
	loc *time.Location,
	corsAll bool,
	log *slog.Logger,
) *Server {
	s := &Server{
		store:     store,
		bus:       bus,
		children:  children,
		calendars: calendars,
		tokens:    tokens,
		window:    window,
		loc:       loc,
		corsAll:   corsAll,
		log:       log,
		mux:       http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{}
	if corsAll {
		// Default origin check rejects cross-origin upgrades; dashboards
		// served elsewhere need them when CORS is open.
		s.upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if !s.corsAll {
		return s.mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleGetStatus)
	s.mux.HandleFunc("GET /api/children", s.handleGetChildren)
	s.mux.HandleFunc("GET /api/children/{uid}/events", s.handleGetEvents)
	s.mux.HandleFunc("GET /api/children/{uid}/events/next", s.handleGetNextEvent)
	s.mux.HandleFunc("GET /api/children/{uid}/calendar.ics", s.handleGetICS)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// --- Handlers ---

type statusResponse struct {
	Authenticated bool            `json:"authenticated"`
	AuthError     string          `json:"auth_error,omitempty"`
	Children      []tracker.Child `json:"children"`
	LastPoll      *time.Time      `json:"last_poll,omitempty"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Children: s.children}

	if _, err := s.tokens.Token(r.Context()); err != nil {
		resp.AuthError = auth.Classify(err).Message()
	} else {
		resp.Authenticated = true
	}

	for _, snap := range s.store.Snapshot() {
		if resp.LastPoll == nil || snap.FetchedAt.After(*resp.LastPoll) {
			t := snap.FetchedAt
			resp.LastPoll = &t
		}
	}

	s.writeJSON(w, resp)
}

func (s *Server) handleGetChildren(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.children)
}

// handleGetEvents answers the event query for one child. Source failures
// degrade to a shorter list rather than an error status; only an unknown
// child or an unparseable window fails the request.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.calendars[r.PathValue("uid")]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown child")
		return
	}

	start, end, err := s.parseWindow(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	evts := cal.Events(r.Context(), start, end)
	s.writeJSON(w, map[string]interface{}{
		"start":  start.Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
		"events": evts,
	})
}

func (s *Server) handleGetNextEvent(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.calendars[r.PathValue("uid")]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown child")
		return
	}

	next, ok := cal.NextUpcoming()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, next)
}

// handleGetICS serves the child's events as an iCalendar feed. The window
// runs from the default look-back to now plus the requested number of days
// (default 7).
func (s *Server) handleGetICS(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	cal, ok := s.calendars[uid]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown child")
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	now := time.Now().In(s.loc)
	evts := cal.Events(r.Context(), now.Add(-s.window.Back), now.AddDate(0, 0, days))

	feed := buildICS(uid, evts)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if err := ical.NewEncoder(w).Encode(feed); err != nil {
		s.log.Error("failed to encode ICS feed", "child", uid, "error", err)
	}
}

// buildICS renders events as VEVENTs. Instantaneous events get no DTEND so
// calendar clients show them as markers rather than zero-length blocks.
func buildICS(childUID string, evts []events.Event) *ical.Calendar {
	feed := ical.NewCalendar()
	feed.Props.SetText(ical.PropVersion, "2.0")
	feed.Props.SetText(ical.PropProductID, "-//huckleberryd//Huckleberry Bridge//EN")

	now := time.Now().UTC()
	for _, ev := range evts {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, eventUID(childUID, ev))
		vevent.Props.SetText(ical.PropSummary, ev.Summary)
		if ev.Description != "" {
			vevent.Props.SetText(ical.PropDescription, ev.Description)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
		if ev.End.After(ev.Start) {
			vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)
		feed.Children = append(feed.Children, vevent.Component)
	}
	return feed
}

// eventUID derives a stable UID from the child, category and start time, so
// refreshing the feed does not duplicate entries.
func eventUID(childUID string, ev events.Event) string {
	seed := fmt.Sprintf("%s/%s/%d", childUID, ev.Category, ev.Start.Unix())
	return uuid.NewSHA1(eventUIDNamespace, []byte(seed)).String()
}

// --- WebSocket stream ---

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWebSocket upgrades the connection and streams bus events as JSON
// until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	evtCh, unsub := s.bus.Subscribe(64)
	defer unsub()

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-evtCh:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

// --- helpers ---

// parseWindow reads the optional start/end query parameters, falling back to
// the configured default window around now.
func (s *Server) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().In(s.loc)
	start := now.Add(-s.window.Back)
	end := now.Add(s.window.Forward)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
		end = t
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end must be after start")
	}
	return start, end, nil
}
