package conversation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultHandle is used by callers that don't name a session.
const DefaultHandle = "default"

// DefaultIdleTimeout is how long an unused session survives.
const DefaultIdleTimeout = 30 * time.Minute

// Registry hands out one Session per handle, creating them on first use and
// dropping them once idle for longer than the timeout.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	create   func() *Session
	idle     time.Duration
	now      func() time.Time
	log      *slog.Logger
}

type entry struct {
	session  *Session
	lastUsed time.Time
}

type RegistryOption func(*Registry)

func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

func NewRegistry(create func() *Session, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		create:   create,
		idle:     DefaultIdleTimeout,
		now:      time.Now,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the session for handle, creating it if needed, and marks it used.
func (r *Registry) Get(handle string) *Session {
	if handle == "" {
		handle = DefaultHandle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[handle]
	if !ok {
		e = &entry{session: r.create()}
		r.sessions[handle] = e
		r.log.Debug("session created", "handle", handle)
	}
	e.lastUsed = r.now()
	return e.session
}

// Clear empties the history of an existing session. Unknown handles are ignored.
func (r *Registry) Clear(handle string) {
	if handle == "" {
		handle = DefaultHandle
	}
	r.mu.Lock()
	e, ok := r.sessions[handle]
	r.mu.Unlock()
	if ok {
		e.session.Clear()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the timeout and returns how many went.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idle)
	removed := 0
	for handle, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			delete(r.sessions, handle)
			removed++
		}
	}
	if removed > 0 {
		r.log.Info("expired idle sessions", "count", removed)
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
