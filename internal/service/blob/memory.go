package blob

import (
	"context"
	"slices"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process and returns memory://<id> URLs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Upload(ctx context.Context, id string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = memoryObject{data: slices.Clone(data), contentType: contentTypeOf(data, contentType)}
	return nil
}

func (m *MemoryStore) DownloadURL(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[id]; !ok {
		return "", ErrNotFound
	}
	return "memory://" + id, nil
}

// Object returns a copy of the stored bytes and content type.
func (m *MemoryStore) Object(id string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	if !ok {
		return nil, "", false
	}
	return slices.Clone(obj.data), obj.contentType, true
}

var _ Store = (*MemoryStore)(nil)
