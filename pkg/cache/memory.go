package cache

import (
	"sync"
	"time"
)

type item struct {
	value    interface{}
	expireAt time.Time
}

func (i *item) expired() bool {
	return time.Now().After(i.expireAt)
}

// Memory is a TTL in-memory cache for values that change slowly relative
// to the poll cycle, like the exchange instrument listing.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*item
}

// NewMemory creates an in-memory cache.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]*item)}
}

// Set stores value under key for ttl.
func (m *Memory) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &item{value: value, expireAt: time.Now().Add(ttl)}
}

// Get returns the cached value, or nil and false when the key is missing
// or expired. Expired entries are evicted on access.
func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	it, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if it.expired() {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, false
	}
	return it.value, true
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}
