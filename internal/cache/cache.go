// Package cache implements the multi-backend, namespaced cache used to
// avoid refetching market data, news, and fundamentals within a run and
// across runs: a primary+fallback backend chain with read-through
// promotion, content-addressed file persistence, and a smart-TTL policy
// driven by access frequency.
package cache

import (
	"sort"
	"strings"
	"time"
)

// DataType classifies a cached value for default-TTL lookup.
type DataType string

const (
	DataTypeStock        DataType = "stock_data"
	DataTypeNews         DataType = "news_data"
	DataTypeFundamentals DataType = "fundamentals"
	DataTypeMarket       DataType = "market_data"
	DataTypeCapitalFlow  DataType = "capital_flow"
	DataTypeConcept      DataType = "concept_data"
	DataTypeDividend     DataType = "dividend_data"
	DataTypeDefault      DataType = "default"
)

// defaultTTLs is the per-data-type TTL table: live
// quotes and capital-flow series refresh every five minutes, stock and
// concept data every half hour, news every fifteen minutes, dividend
// history hourly, and fundamentals daily.
var defaultTTLs = map[DataType]time.Duration{
	DataTypeStock:        30 * time.Minute,
	DataTypeNews:         15 * time.Minute,
	DataTypeFundamentals: 24 * time.Hour,
	DataTypeMarket:       5 * time.Minute,
	DataTypeCapitalFlow:  5 * time.Minute,
	DataTypeConcept:      30 * time.Minute,
	DataTypeDividend:     time.Hour,
	DataTypeDefault:      10 * time.Minute,
}

// DefaultTTL returns the default TTL for a data type.
func DefaultTTL(dt DataType) time.Duration {
	if ttl, ok := defaultTTLs[dt]; ok {
		return ttl
	}
	return defaultTTLs[DataTypeDefault]
}

// Entry is a single cached value plus its bookkeeping.
type Entry struct {
	Value       []byte
	DataType    DataType
	CreatedAt   time.Time
	ExpiresAt   time.Time
	AccessCount int64
	LastAccess  time.Time
}

// IsExpired reports whether the entry is past its expiry. A zero
// ExpiresAt marks an entry set with ttl_seconds == 0 ("never expire");
// it only goes away via an explicit Delete/ClearNamespace/ClearAll.
func (e *Entry) IsExpired() bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.ExpiresAt)
}

// Backend is a single storage tier (memory, file, ...).
type Backend interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry)
	Delete(key string)
	ClearNamespace(namespace string)
	ClearAll()
	Keys() []string
	Close() error
}

// Manager is the cache contract consumed by the rest of the system.
//
// Set's ttlOverride is optional: omitted, the TTL is computed from
// dataType (and, for the unified
// manager, adjusted by the smart-TTL policy); passed explicitly, that
// duration is used as-is, and a passed value of 0 means the entry
// never expires until an explicit Delete/ClearNamespace/ClearAll.
type Manager interface {
	Get(namespace, key string, extra map[string]string) ([]byte, bool)
	Set(namespace, key string, extra map[string]string, value []byte, dataType DataType, ttlOverride ...time.Duration)
	Delete(namespace, key string, extra map[string]string)
	ClearNamespace(namespace string)
	ClearAll()
	Stats() Stats
	Close() error
}

// Stats summarizes cache usage for operational visibility.
type Stats struct {
	PrimaryKeys  int
	FallbackKeys int
	Hits         int64
	Misses       int64
}

// Key builds the composite cache key: "namespace:key:sorted_extra_params",
// deterministic regardless of the extra-params map's iteration order.
func Key(namespace, key string, extra map[string]string) string {
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(key)
	if len(extra) == 0 {
		return b.String()
	}
	names := make([]string, 0, len(extra))
	for k := range extra {
		names = append(names, k)
	}
	sort.Strings(names)
	b.WriteByte(':')
	for i, k := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(extra[k])
	}
	return b.String()
}

func namespaceOf(key string) string {
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		return key[:idx]
	}
	return key
}

