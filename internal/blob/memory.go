package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory is a Store backed by a map. It is used when no object storage is
// configured and in tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
	// FailPuts makes every Put fail, for exercising upload error paths.
	FailPuts bool
	// PingErr is returned by Ping.
	PingErr error
}

type memoryObject struct {
	data []byte
	info Info
}

func NewMemory(baseURL string) *Memory {
	return &Memory{objects: map[string]memoryObject{}, baseURL: baseURL}
}

var errPutFailed = errors.New("memory blob store: put failed")

func (m *Memory) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	if m.FailPuts {
		return "", errPutFailed
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, info: Info{Size: int64(len(data)), ContentType: contentType, ModTime: time.Now()}}
	m.mu.Unlock()
	return PublicURL(m.baseURL, key), nil
}

func (m *Memory) Open(_ context.Context, key string) (io.ReadCloser, Info, error) {
	if !ValidKey(key) {
		return nil, Info{}, ErrInvalidKey
	}
	m.mu.RLock()
	object, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, Info{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(object.data)), object.info, nil
}

func (m *Memory) Ping(context.Context) error {
	return m.PingErr
}

// Keys lists stored keys in no particular order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	return keys
}
