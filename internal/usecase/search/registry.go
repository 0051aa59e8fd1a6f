package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain"
)

// RendererFactory builds the renderer of a new session.
type RendererFactory func(sessionID string) Renderer

// Registry hands out sessions by id and evicts idle ones.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTTL     time.Duration
	newRenderer RendererFactory
	logger      *zap.Logger
	now         func() time.Time
}

// NewRegistry creates an empty registry. idleTTL <= 0 disables eviction.
func NewRegistry(idleTTL time.Duration, newRenderer RendererFactory, logger *zap.Logger) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		idleTTL:     idleTTL,
		newRenderer: newRenderer,
		logger:      logger,
		now:         time.Now,
	}
}

// Acquire returns the session with id, creating it if id is unknown.
// An empty id gets a fresh random id.
func (r *Registry) Acquire(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: session id must be a UUID", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Touch(r.now())
		return s, nil
	}
	s := NewSession(id, r.newRenderer(id))
	s.Touch(r.now())
	r.sessions[id] = s
	return s, nil
}

// Get returns an existing session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict drops sessions idle longer than the TTL and returns how many went.
// A session with a chain in flight is never idle.
func (r *Registry) Evict() int {
	if r.idleTTL <= 0 {
		return 0
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.idleSince(now) > r.idleTTL {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(); n > 0 {
				r.logger.Debug("Evicted idle sessions", zap.Int("count", n), zap.Int("remaining", r.Len()))
			}
		}
	}
}
