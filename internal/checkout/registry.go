package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/botica/internal/session"
	"golang.org/x/sync/singleflight"
)

// Registry keeps one live Coordinator per session, loading it from the
// session repository on first use.
type Registry struct {
	deps  Deps
	repo  *session.Repository
	group singleflight.Group

	mu     sync.Mutex
	active map[string]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps, repo *session.Repository) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		deps:   deps,
		repo:   repo,
		active: make(map[string]*Coordinator),
	}
}

// Get returns the coordinator of sessionID, restoring it if needed.
// Concurrent first requests for one session share a single load.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Coordinator, error) {
	r.mu.Lock()
	c, ok := r.active[sessionID]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	v, err, _ := r.group.Do(sessionID, func() (interface{}, error) {
		r.mu.Lock()
		if c, ok := r.active[sessionID]; ok {
			r.mu.Unlock()
			return c, nil
		}
		r.mu.Unlock()

		c, err := Load(ctx, r.deps, r.repo.For(sessionID))
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.active[sessionID] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Coordinator), nil
}

// Forget drops the in-memory coordinator of sessionID, cancelling its attempt.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	c, ok := r.active[sessionID]
	delete(r.active, sessionID)
	r.mu.Unlock()

	if ok {
		c.Abandon(context.Background())
	}
}

// Evict unloads coordinators idle for longer than idle. Their state stays in
// the session repository. Busy coordinators are kept.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.deps.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, c := range r.active {
		if c.Busy() || c.LastActive().After(cutoff) {
			continue
		}
		delete(r.active, id)
		n++
	}
	if n > 0 {
		r.deps.Logger.Debug("evicted idle sessions", slog.Int("count", n))
	}
	return n
}

// Len returns the number of loaded coordinators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Run evicts idle coordinators every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict(idle)
		}
	}
}
