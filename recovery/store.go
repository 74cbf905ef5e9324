package recovery

import (
	"context"
	"sync"
)

// AttemptStore keeps per-(operation, pattern) failure counters. Implementations
// must be safe for concurrent increments.
type AttemptStore interface {
	// Incr increments the counter and returns the new value.
	Incr(ctx context.Context, operationID string, pattern ErrorPattern) (int, error)
	// Reset drops every counter of the operation.
	Reset(ctx context.Context, operationID string) error
}

type attemptKey struct {
	operationID string
	pattern     ErrorPattern
}

// MemoryStore is an in-process AttemptStore.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[attemptKey]int
}

// NewMemoryStore 创建内存计数器存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[attemptKey]int)}
}

func (s *MemoryStore) Incr(_ context.Context, operationID string, pattern ErrorPattern) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := attemptKey{operationID, pattern}
	s.counts[k]++
	return s.counts[k], nil
}

func (s *MemoryStore) Reset(_ context.Context, operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.counts {
		if k.operationID == operationID {
			delete(s.counts, k)
		}
	}
	return nil
}
