package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

func unixToTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// UnifiedManager orchestrates a primary backend plus an ordered chain of
// fallback backends. A miss on the primary probes each fallback in turn;
// the first hit is promoted back onto the primary (read-through) so the
// next lookup is fast again. Writes go to the primary only; deletes
// broadcast to every backend.
type UnifiedManager struct {
	primary   Backend
	fallbacks []Backend
	policy    *SmartTTLPolicy

	hits   int64
	misses int64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewUnifiedManager builds a manager. fallbacks are consulted in order on
// a primary miss. Pass a nil policy to disable smart-TTL extension.
func NewUnifiedManager(primary Backend, fallbacks []Backend, policy *SmartTTLPolicy) *UnifiedManager {
	m := &UnifiedManager{
		primary:   primary,
		fallbacks: fallbacks,
		policy:    policy,
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *UnifiedManager) Get(namespace, key string, extra map[string]string) ([]byte, bool) {
	ck := Key(namespace, key, extra)

	if entry, ok := m.primary.Get(ck); ok {
		atomic.AddInt64(&m.hits, 1)
		m.touch(ck, entry)
		return entry.Value, true
	}

	for _, fb := range m.fallbacks {
		entry, ok := fb.Get(ck)
		if !ok {
			continue
		}
		atomic.AddInt64(&m.hits, 1)
		m.primary.Set(ck, entry) // promote
		m.touch(ck, entry)
		return entry.Value, true
	}

	atomic.AddInt64(&m.misses, 1)
	return nil, false
}

func (m *UnifiedManager) Set(namespace, key string, extra map[string]string, value []byte, dataType DataType, ttlOverride ...time.Duration) {
	ck := Key(namespace, key, extra)
	now := time.Now()

	var ttl time.Duration
	if len(ttlOverride) > 0 {
		// Explicit override: used as-is, never adjusted by smart-TTL.
		ttl = ttlOverride[0]
	} else {
		ttl = DefaultTTL(dataType)
		if m.policy != nil {
			ttl = m.policy.Adjust(ck, ttl)
		}
	}

	entry := &Entry{
		Value:      value,
		DataType:   dataType,
		CreatedAt:  now,
		LastAccess: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	} // ttl <= 0 leaves ExpiresAt zero: never expires until explicit delete.

	// set writes only to primary; fallbacks populate lazily via Get's
	// read-through promotion. delete/clear still broadcast to all backends.
	m.primary.Set(ck, entry)
}

func (m *UnifiedManager) Delete(namespace, key string, extra map[string]string) {
	ck := Key(namespace, key, extra)
	m.primary.Delete(ck)
	for _, fb := range m.fallbacks {
		fb.Delete(ck)
	}
}

func (m *UnifiedManager) ClearNamespace(namespace string) {
	m.primary.ClearNamespace(namespace)
	for _, fb := range m.fallbacks {
		fb.ClearNamespace(namespace)
	}
}

func (m *UnifiedManager) ClearAll() {
	m.primary.ClearAll()
	for _, fb := range m.fallbacks {
		fb.ClearAll()
	}
}

func (m *UnifiedManager) Stats() Stats {
	fbKeys := 0
	for _, fb := range m.fallbacks {
		fbKeys += len(fb.Keys())
	}
	return Stats{
		PrimaryKeys:  len(m.primary.Keys()),
		FallbackKeys: fbKeys,
		Hits:         atomic.LoadInt64(&m.hits),
		Misses:       atomic.LoadInt64(&m.misses),
	}
}

func (m *UnifiedManager) Close() error {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
	if err := m.primary.Close(); err != nil {
		return err
	}
	for _, fb := range m.fallbacks {
		if err := fb.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (m *UnifiedManager) touch(key string, entry *Entry) {
	if m.policy != nil {
		m.policy.RecordAccess(key)
	}
	entry.AccessCount++
	entry.LastAccess = time.Now()
}

// sweepLoop periodically drops expired entries from every backend so a
// cold primary doesn't accumulate stale blobs forever, and trims the
// smart-TTL policy's access history on a tighter cadence.
func (m *UnifiedManager) sweepLoop() {
	expiry := time.NewTicker(5 * time.Minute)
	defer expiry.Stop()
	trim := time.NewTicker(time.Minute)
	defer trim.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-expiry.C:
			m.sweepExpired(m.primary)
			for _, fb := range m.fallbacks {
				m.sweepExpired(fb)
			}
		case <-trim.C:
			if m.policy != nil {
				m.policy.Trim()
			}
		}
	}
}

func (m *UnifiedManager) sweepExpired(b Backend) {
	for _, key := range b.Keys() {
		if entry, ok := b.Get(key); ok && entry.IsExpired() {
			b.Delete(key)
		}
	}
}
