package profile

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore implements Store in process. Values are copied in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, id string, p *Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := p.Clone()
	c.ID = id
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[id] = c
	return nil
}

// ScanAll returns profiles ordered by ID.
func (m *MemoryStore) ScanAll(ctx context.Context) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p.Clone())
	}
	slices.SortFunc(out, func(a, b Profile) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	profiles, err := m.ScanAll(ctx)
	if err != nil {
		return false, err
	}
	return usernameIn(profiles, username), nil
}

// Len returns the number of stored profiles.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

var _ Store = (*MemoryStore)(nil)
