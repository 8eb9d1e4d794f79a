// Package dedup rejects re-delivered webhook payloads using a time-windowed
// seen-set keyed by provider message id. Webhook providers deliver at least
// once; the deduplicator makes the rest of the pipeline effectively
// exactly-once within the TTL window.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Deduplicator reports whether a provider message id was already processed,
// marking it seen as a side effect. Messages without a provider id are never
// deduplicated: an empty id always returns false.
type Deduplicator interface {
	Seen(ctx context.Context, providerMessageID string) (bool, error)
}

// MemoryStore is the in-process store for single-replica deployments: a key
// to insertion-time map pruned lazily on each call.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryStore creates an in-memory deduplicator with the given TTL window.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen implements Deduplicator.
func (s *MemoryStore) Seen(_ context.Context, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.ttl)
	for id, insertedAt := range s.seen {
		if insertedAt.Before(cutoff) {
			delete(s.seen, id)
		}
	}

	if _, ok := s.seen[providerMessageID]; ok {
		return true, nil
	}

	s.seen[providerMessageID] = now
	return false, nil
}
