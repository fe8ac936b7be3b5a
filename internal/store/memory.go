package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory ScoreStore. It mirrors Redis sorted-set
// semantics, including tie ordering (equal scores order lexically), so
// the registry behaves the same against either backend. Safe for
// concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	scores map[string]int64
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[string]int64)}
}

func (m *MemoryStore) Score(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	score, ok := m.scores[key]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

func (m *MemoryStore) SetScore(ctx context.Context, key string, score int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.scores[key] = score
	return nil
}

func (m *MemoryStore) AddIfAbsent(ctx context.Context, key string, score int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.scores[key]; ok {
		return false, nil
	}
	m.scores[key] = score
	return true, nil
}

func (m *MemoryStore) IncrScore(ctx context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	m.scores[key] += delta
	return m.scores[key], nil
}

func (m *MemoryStore) DecrOrRemove(ctx context.Context, key string, floor int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, false, ErrClosed
	}
	score, ok := m.scores[key]
	if !ok || score-1 <= floor {
		delete(m.scores, key)
		return 0, true, nil
	}
	m.scores[key] = score - 1
	return score - 1, false, nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.scores, key)
	return nil
}

func (m *MemoryStore) Card(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return int64(len(m.scores)), nil
}

func (m *MemoryStore) RangeByScore(ctx context.Context, min, max int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.scores))
	for k, s := range m.scores {
		if s >= min && s <= max {
			keys = append(keys, k)
		}
	}
	m.sortAscLocked(keys)
	return keys, nil
}

func (m *MemoryStore) RangeByRankDesc(ctx context.Context, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.scores))
	for k := range m.scores {
		keys = append(keys, k)
	}
	m.sortAscLocked(keys)
	// reverse for descending rank order
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	if start < 0 {
		start = 0
	}
	n := int64(len(keys))
	if start >= n || stop <= start {
		return []string{}, nil
	}
	if stop > n {
		stop = n
	}
	return keys[start:stop], nil
}

// Close marks the store closed. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// sortAscLocked orders keys by ascending score, breaking ties lexically,
// matching Redis sorted-set ordering. Caller holds at least a read lock.
func (m *MemoryStore) sortAscLocked(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		si, sj := m.scores[keys[i]], m.scores[keys[j]]
		if si != sj {
			return si < sj
		}
		return keys[i] < keys[j]
	})
}
