// Package hub fans out build notifications to connected viewer sessions.
// It decouples the build lifecycle from the changing set of browser tabs:
// the orchestrator broadcasts once per completed build, and every live
// session observes that generation or a later one.
package hub

import (
	"context"
	"sync"

	"github.com/conneroisu/docserve/internal/build"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
)

// Update is the notification pushed to viewer sessions.
type Update struct {
	Generation uint64 `json:"generation"`
	State      string `json:"state"`
	// Detail carries the rendered failure overlay when State is "failed".
	Detail string `json:"detail,omitempty"`
}

// FromSnapshot converts a build snapshot into a viewer update.
func FromSnapshot(s build.Snapshot) Update {
	u := Update{
		Generation: s.Generation,
		State:      s.State.String(),
	}
	if s.Failure != nil {
		u.Detail = s.Failure.FormatForBrowser()
	}
	return u
}

// sessionBuffer is the per-session update buffer. A session that falls
// this far behind is dropped rather than stalling the broadcast.
const sessionBuffer = 8

// Session is a connected viewer's live-update subscription.
type Session struct {
	updates chan Update

	mu     sync.Mutex
	closed bool
}

// Updates returns the channel carrying this session's notifications. The
// channel is closed when the session is unsubscribed.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// trySend delivers an update without blocking. It reports false when the
// session is closed or its buffer is full.
func (s *Session) trySend(u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.updates <- u:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.updates)
	}
}

// Hub is the session registry and broadcaster.
type Hub struct {
	log      logging.Logger
	recorder *metrics.Recorder

	mu        sync.Mutex
	sessions  map[*Session]struct{}
	latest    Update
	hasLatest bool
}

// New creates an empty hub.
func New(recorder *metrics.Recorder, log logging.Logger) *Hub {
	return &Hub{
		log:      log.WithComponent("hub"),
		recorder: recorder,
		sessions: make(map[*Session]struct{}),
	}
}

// Subscribe registers a new viewer session. If a build has completed
// before, the session immediately receives the current state so a newly
// opened tab reflects reality without waiting for the next file change.
func (h *Hub) Subscribe() *Session {
	s := &Session{updates: make(chan Update, sessionBuffer)}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	latest, ok := h.latest, h.hasLatest
	count := len(h.sessions)
	h.mu.Unlock()

	if ok {
		s.trySend(latest)
	}
	h.recorder.SessionOpened()
	h.log.Debug(context.Background(), "session subscribed", "sessions", count)
	return s
}

// Unsubscribe removes a session and closes its update channel. Safe to
// call more than once.
func (h *Hub) Unsubscribe(s *Session) {
	h.mu.Lock()
	_, registered := h.sessions[s]
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()

	if !registered {
		return
	}
	s.close()
	h.recorder.SessionClosed()
	h.log.Debug(context.Background(), "session unsubscribed", "sessions", count)
}

// Broadcast pushes an update to every registered session, best-effort. A
// session whose buffer is full is dropped; delivery to the others
// continues. Iteration happens over a snapshot of the session set so
// concurrent subscribes and unsubscribes are safe.
func (h *Hub) Broadcast(u Update) {
	h.mu.Lock()
	h.latest = u
	h.hasLatest = true
	snapshot := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	for _, s := range snapshot {
		if !s.trySend(u) {
			h.log.Debug(context.Background(), "dropping slow session", "generation", u.Generation)
			h.Unsubscribe(s)
		}
	}
}

// Close unsubscribes every session.
func (h *Hub) Close() {
	h.mu.Lock()
	snapshot := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	for _, s := range snapshot {
		h.Unsubscribe(s)
	}
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
