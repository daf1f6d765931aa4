package blob

import (
	"context"
	"sync"
)

// Memory es un Storage en memoria, para tests y para el modo sin disco.
type Memory struct {
	Locker
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Keys devuelve las claves guardadas.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

type memoryAdapter struct{}

func (memoryAdapter) Name() string { return "memory" }
func (memoryAdapter) Open(context.Context, Config) (Storage, error) {
	return NewMemory(), nil
}

func init() { RegisterAdapter(memoryAdapter{}) }
