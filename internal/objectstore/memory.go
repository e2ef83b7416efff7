package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
)

type memObject struct {
	data []byte
	ct   string
}

// Memory keeps blobs in process; used in tests and when no storage is configured.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]memObject{}}
}

func (m *Memory) Put(ctx context.Context, key, contentType string, data []byte) (Object, error) {
	k, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	ct := contentTypeFor(k, contentType)
	m.mu.Lock()
	m.objects[k] = memObject{data: append([]byte(nil), data...), ct: ct}
	m.mu.Unlock()
	return Object{Key: k, ContentType: ct, Size: int64(len(data))}, nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, Object, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, Object{}, err
	}
	m.mu.RLock()
	obj, ok := m.objects[k]
	m.mu.RUnlock()
	if !ok {
		return nil, Object{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), Object{Key: k, ContentType: obj.ct, Size: int64(len(obj.data))}, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, k)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
