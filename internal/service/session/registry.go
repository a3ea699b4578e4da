package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"go.uber.org/zap"

	applog "github.com/janisto/chatmate/internal/platform/logging"
	"github.com/janisto/chatmate/internal/service/blob"
	"github.com/janisto/chatmate/internal/service/identity"
	"github.com/janisto/chatmate/internal/service/profile"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// DefaultIdleTimeout applies when RegistryConfig.IdleTimeout is zero.
const DefaultIdleTimeout = 30 * time.Minute

// RegistryConfig wires a Registry.
type RegistryConfig struct {
	Identity    identity.Factory
	Profiles    profile.Store
	Blobs       blob.Store
	IdleTimeout time.Duration
	Now         func() time.Time
}

type entry struct {
	coord    *Coordinator
	lastUsed time.Time
}

// Registry holds the live sessions, each with its own Coordinator and
// identity session. Sessions idle past the timeout are dropped by Sweep.
type Registry struct {
	factory  identity.Factory
	profiles profile.Store
	blobs    blob.Store
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		factory:  cfg.Identity,
		profiles: cfg.Profiles,
		blobs:    cfg.Blobs,
		idle:     cfg.IdleTimeout,
		now:      cfg.Now,
		sessions: make(map[string]*entry),
	}
	if r.idle <= 0 {
		r.idle = DefaultIdleTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Profiles exposes the shared profile store for session-less reads.
func (r *Registry) Profiles() profile.Store { return r.profiles }

// Open starts a session. A non-empty refreshToken resumes that principal and
// publishes its profile before the session is returned.
func (r *Registry) Open(ctx context.Context, refreshToken string) (string, *Coordinator, error) {
	svc := r.factory.New()
	if refreshToken != "" {
		restored, err := r.factory.Restore(ctx, refreshToken)
		if err != nil {
			return "", nil, err
		}
		svc = restored
	}
	coord := New(Deps{Identity: svc, Profiles: r.profiles, Blobs: r.blobs})
	if refreshToken != "" {
		if err := coord.LoadCurrentProfile(ctx); err != nil {
			return "", nil, err
		}
	}

	id, err := newSessionID()
	if err != nil {
		return "", nil, err
	}
	r.mu.Lock()
	r.sessions[id] = &entry{coord: coord, lastUsed: r.now()}
	r.mu.Unlock()
	applog.LogInfo(ctx, "session opened", zap.String("sessionId", id), zap.Bool("restored", refreshToken != ""))
	return id, coord, nil
}

// newSessionID returns an ID that sorts by creation time and carries 122
// random bits. The ID is the only credential for session routes, so the xid
// prefix alone must never resolve a session.
func newSessionID() (string, error) {
	secret, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return xid.New().String() + strings.ReplaceAll(secret.String(), "-", ""), nil
}

// Get returns the session's Coordinator and marks it used.
func (r *Registry) Get(id string) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastUsed = r.now()
	return e.coord, nil
}

// Close signs the session out and forgets it.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return e.coord.SignOut(ctx)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle longer than the timeout and returns how many.
// A session with an open Watch stream counts as in use.
// Dropped sessions are signed out locally.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.idle)
	var expired []*Coordinator
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.coord.Watchers() > 0 {
			e.lastUsed = r.now()
			continue
		}
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e.coord)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		if err := c.SignOut(ctx); err != nil && ctx.Err() == nil {
			applog.LogWarn(ctx, "sign-out of idle session failed", zap.Error(err))
		}
	}
	if len(expired) > 0 {
		applog.LogInfo(ctx, "idle sessions expired", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps every half timeout until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
