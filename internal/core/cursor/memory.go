package cursor

import (
	"context"
	"sync"
)

// Memory is an in-process Store for dry runs and tests
type Memory struct {
	mu sync.Mutex
	m  map[Key]string
}

// NewMemory returns an empty Memory store
func NewMemory() *Memory { return &Memory{m: map[Key]string{}} }

// Get returns the stored watermark
func (s *Memory) Get(_ context.Context, k Key) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[k]
	return v, ok, nil
}

// Put stores v unless it would lower the current value
func (s *Memory) Put(_ context.Context, k Key, kind Kind, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[k]; ok && Compare(kind, v, cur) <= 0 {
		return nil
	}
	s.m[k] = v
	return nil
}

// Snapshot copies the stored watermarks
func (s *Memory) Snapshot() map[Key]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Key]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}
