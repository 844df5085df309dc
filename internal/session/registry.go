package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/metrics"
)

// Registry owns every live session and expires idle ones.
type Registry struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	ttl := deps.Config.Server.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

// Create starts a session and, when the default document exists, loads it.
// A failing default load is recorded in the session state.
func (r *Registry) Create(ctx context.Context) *Session {
	s := newSession(uuid.NewString(), r.deps, r.now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetSessions(n)
	s.log.Info().Msg("session created")

	if ref := r.deps.Config.Source.DefaultDocument; ref != "" && r.deps.Source != nil {
		if _, err := r.deps.Source.Probe(ctx, ref); err != nil {
			s.log.Debug().Err(err).Str("ref", ref).Msg("no default document")
		} else {
			_, _ = s.LoadURL(ctx, ref)
		}
	}
	return s
}

// Get returns a live session and marks it used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		s.log.Info().Msg("session expired")
	}
	if len(expired) > 0 {
		metrics.SetSessions(n)
	}
	return len(expired)
}

// Run sweeps periodically until ctx ends, then closes every session.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("swept idle sessions")
			}
		}
	}
}

// Close ends every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	metrics.SetSessions(0)
}
