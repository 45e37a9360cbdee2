package cache

import (
	"container/list"
	"sync"
)

// MemoryBackend is an in-process LRU cache backend: a TTL map plus a
// recency list, so a bounded backend evicts the coldest entry instead
// of growing unbounded.
type MemoryBackend struct {
	mu       sync.Mutex
	maxItems int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type memItem struct {
	key   string
	entry *Entry
}

// NewMemoryBackend creates an LRU backend capped at maxItems (0 = unbounded).
func NewMemoryBackend(maxItems int) *MemoryBackend {
	return &MemoryBackend{
		maxItems: maxItems,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (m *MemoryBackend) Get(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*memItem)
	if item.entry.IsExpired() {
		m.removeElement(el)
		return nil, false
	}
	m.order.MoveToFront(el)
	return item.entry, true
}

func (m *MemoryBackend) Set(key string, entry *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		el.Value.(*memItem).entry = entry
		m.order.MoveToFront(el)
		return
	}

	el := m.order.PushFront(&memItem{key: key, entry: entry})
	m.entries[key] = el

	if m.maxItems > 0 && m.order.Len() > m.maxItems {
		m.evictOldest()
	}
}

func (m *MemoryBackend) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.removeElement(el)
	}
}

func (m *MemoryBackend) ClearNamespace(namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, el := range m.entries {
		if namespaceOf(key) == namespace {
			m.removeElement(el)
		}
	}
}

func (m *MemoryBackend) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*list.Element)
	m.order.Init()
}

func (m *MemoryBackend) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

func (m *MemoryBackend) Close() error { return nil }

// evictOldest removes the least-recently-used entry. Must hold m.mu.
func (m *MemoryBackend) evictOldest() {
	el := m.order.Back()
	if el != nil {
		m.removeElement(el)
	}
}

// removeElement unlinks el from both the map and the list. Must hold m.mu.
func (m *MemoryBackend) removeElement(el *list.Element) {
	item := el.Value.(*memItem)
	delete(m.entries, item.key)
	m.order.Remove(el)
}
