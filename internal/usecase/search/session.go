package search

import (
	"sync"
	"time"

	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/domain/search/outcome"
)

// State is the orchestrator state of a session.
type State string

// Orchestrator states.
const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateComplete   State = "complete"
	StateNoResults  State = "no_results"
	StateFailed     State = "failed"
	StateSuperseded State = "superseded"
)

func stateOf(k outcome.Kind) State {
	switch k {
	case outcome.Rendered:
		return StateComplete
	case outcome.NoResults:
		return StateNoResults
	case outcome.Superseded:
		return StateSuperseded
	default:
		return StateFailed
	}
}

// Session is the per-client search context: its own renderer, a monotonic
// submission sequence and the mode/query of the latest submission.
type Session struct {
	id       string
	renderer Renderer

	mu       sync.Mutex
	seq      uint64
	mode     mode.Mode
	query    string
	state    State
	stage    string
	last     outcome.Outcome
	lastUsed time.Time
}

// NewSession creates an idle session.
func NewSession(id string, r Renderer) *Session {
	return &Session{id: id, renderer: r, state: StateIdle, lastUsed: time.Now()}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Renderer returns the session's display boundary.
func (s *Session) Renderer() Renderer { return s.renderer }

// View is a point-in-time copy of a session's state.
type View struct {
	ID          string
	Seq         uint64
	Mode        mode.Mode
	Query       string
	State       State
	Stage       string
	LastOutcome outcome.Outcome
	LastUsed    time.Time
}

// View returns the current session state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID: s.id, Seq: s.seq, Mode: s.mode, Query: s.query,
		State: s.state, Stage: s.stage, LastOutcome: s.last, LastUsed: s.lastUsed,
	}
}

// begin starts a submission and returns its sequence number. Any
// submission still in flight becomes stale.
func (s *Session) begin(m mode.Mode, query string, now time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.mode = m
	s.query = query
	s.state = StateIdle
	s.stage = ""
	s.lastUsed = now
	return s.seq
}

// enter records the stage seq is fetching; it reports false if seq is stale.
func (s *Session) enter(seq uint64, stage string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return false
	}
	s.state = StateFetching
	s.stage = stage
	return true
}

// WithCurrent runs fn under the session lock if seq is still the latest
// submission and reports whether it ran. Reads of the renderer made inside
// fn see exactly what submission seq drew.
func (s *Session) WithCurrent(seq uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return false
	}
	fn()
	return true
}

// finish records the outcome if seq is still current.
func (s *Session) finish(o outcome.Outcome, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = now
	if o.Seq() != s.seq {
		return
	}
	s.state = stateOf(o.Kind())
	s.stage = ""
	s.last = o
}

// Touch marks the session as used.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFetching {
		return 0
	}
	return now.Sub(s.lastUsed)
}
