package cache

import (
	"container/list"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// defaultCapacity bounds the hot tier when the caller does not.
const defaultCapacity = 4096

// Memory is the hot tier. go-cache handles TTL expiry; a recency list bounds
// the entry count, evicting the least-recently-used entry once over capacity.
type Memory struct {
	c        *gocache.Cache
	capacity int

	mu    sync.Mutex
	order *list.List               // front = most recently used
	index map[string]*list.Element // key -> order element
}

// NewMemory creates the hot tier. defaultTTL bounds entries whose class TTL
// is longer than the process should hold them in RAM; capacity bounds the
// entry count.
func NewMemory(defaultTTL time.Duration, capacity int) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = TTLPage
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Memory{
		c:        gocache.New(defaultTTL, 10*time.Minute),
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the entry for key, if present and fresh.
func (m *Memory) Get(key string) (Entry, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		m.forget(key)
		return Entry{}, false
	}
	e, ok := v.(Entry)
	if !ok {
		return Entry{}, false
	}
	m.touch(key)
	return e, true
}

// Set stores the entry until the shorter of its class TTL and the tier
// default, evicting least-recently-used entries while over capacity.
func (m *Memory) Set(e Entry) {
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return
	}
	m.c.Set(e.Key, e, ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.index[e.Key]; ok {
		m.order.MoveToFront(el)
	} else {
		m.index[e.Key] = m.order.PushFront(e.Key)
	}
	for m.order.Len() > m.capacity {
		back := m.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(string)
		m.order.Remove(back)
		delete(m.index, evicted)
		m.c.Delete(evicted)
	}
}

// Delete drops a key from the hot tier.
func (m *Memory) Delete(key string) {
	m.c.Delete(key)
	m.forget(key)
}

// Len reports the number of live entries, for observability.
func (m *Memory) Len() int {
	return m.c.ItemCount()
}

func (m *Memory) touch(key string) {
	m.mu.Lock()
	if el, ok := m.index[key]; ok {
		m.order.MoveToFront(el)
	}
	m.mu.Unlock()
}

// forget drops recency bookkeeping for keys go-cache expired on its own.
func (m *Memory) forget(key string) {
	m.mu.Lock()
	if el, ok := m.index[key]; ok {
		m.order.Remove(el)
		delete(m.index, key)
	}
	m.mu.Unlock()
}
