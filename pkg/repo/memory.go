package repo

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is the in-process backend for tests and dev mode.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, kind, id string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[kind][id]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (s *MemoryStore) Put(_ context.Context, kind, id string, obj any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[kind] == nil {
		s.data[kind] = make(map[string][]byte)
	}
	s.data[kind][id] = raw
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[kind], id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, kind string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, 0, len(s.data[kind]))
	for _, raw := range s.data[kind] {
		out = append(out, raw)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// MemoryRunGuard implements the single-flight contract with a plain mutex.
type MemoryRunGuard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewMemoryRunGuard() *MemoryRunGuard {
	return &MemoryRunGuard{inFlight: make(map[string]bool)}
}

func (g *MemoryRunGuard) Acquire(_ context.Context, configID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[configID] {
		return nil, ErrAlreadyRunning
	}
	g.inFlight[configID] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.inFlight, configID)
	}, nil
}
