package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Locker for single-instance deployments and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Acquire implements Locker.
func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}

	token := uuid.New().String()
	m.entries[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{locker: m, key: key, token: token}, nil
}

// Held reports whether key is currently held.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && m.now().Before(e.expires)
}

type memoryLease struct {
	locker *Memory
	key    string
	token  string
}

func (l *memoryLease) Extend(_ context.Context, ttl time.Duration) error {
	m := l.locker
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[l.key]
	now := m.now()
	if !ok || e.token != l.token || !now.Before(e.expires) {
		return ErrLeaseLost
	}
	e.expires = now.Add(ttl)
	m.entries[l.key] = e
	return nil
}

func (l *memoryLease) Release(_ context.Context) error {
	m := l.locker
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[l.key]; ok && e.token == l.token {
		delete(m.entries, l.key)
	}
	return nil
}
