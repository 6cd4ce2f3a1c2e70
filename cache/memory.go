package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// Memory is an in-process Service. Expired entries are dropped lazily on
// access, so it runs no background goroutine.
type Memory struct {
	mu      sync.RWMutex
	regions map[Region]map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache service.
func NewMemory() *Memory {
	return &Memory{
		regions: make(map[Region]map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the time source; used by tests to expire entries.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Get implements Service.
func (m *Memory) Get(_ context.Context, region Region, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.regions[region][key]
	now := m.now()
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !now.Before(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have replaced it.
		if current, still := m.regions[region][key]; still && !m.now().Before(current.expiresAt) {
			delete(m.regions[region], key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return slices.Clone(entry.value), true, nil
}

// Put implements Service.
func (m *Memory) Put(_ context.Context, region Region, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.regions[region]
	if !ok {
		items = make(map[string]memoryEntry)
		m.regions[region] = items
	}
	now := m.now()
	items[key] = memoryEntry{
		value:     slices.Clone(value),
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Delete implements Service.
func (m *Memory) Delete(_ context.Context, region Region, key string) error {
	m.mu.Lock()
	delete(m.regions[region], key)
	m.mu.Unlock()
	return nil
}

// ClearAll implements Service.
func (m *Memory) ClearAll(_ context.Context, region Region) error {
	m.mu.Lock()
	delete(m.regions, region)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live entries in region.
func (m *Memory) Len(region Region) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	n := 0
	for _, e := range m.regions[region] {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// StoredAt returns when key was inserted into region.
func (m *Memory) StoredAt(region Region, key string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.regions[region][key]
	return e.storedAt, ok
}

var _ Service = (*Memory)(nil)
