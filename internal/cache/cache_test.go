package cache

import (
	"os"
	"testing"
	"time"
)

func TestKeyIsDeterministicRegardlessOfMapOrder(t *testing.T) {
	a := Key("news", "AAPL", map[string]string{"lang": "en", "limit": "10"})
	b := Key("news", "AAPL", map[string]string{"limit": "10", "lang": "en"})
	if a != b {
		t.Fatalf("expected deterministic keys, got %q vs %q", a, b)
	}
}

func TestMemoryBackendEvictsLRU(t *testing.T) {
	b := NewMemoryBackend(2)
	now := time.Now()
	b.Set("k1", &Entry{Value: []byte("1"), ExpiresAt: now.Add(time.Minute)})
	b.Set("k2", &Entry{Value: []byte("2"), ExpiresAt: now.Add(time.Minute)})
	b.Get("k1") // touch k1, making k2 the LRU victim
	b.Set("k3", &Entry{Value: []byte("3"), ExpiresAt: now.Add(time.Minute)})

	if _, ok := b.Get("k2"); ok {
		t.Fatal("expected k2 to have been evicted")
	}
	if _, ok := b.Get("k1"); !ok {
		t.Fatal("expected k1 to survive eviction")
	}
}

func TestMemoryBackendExpiry(t *testing.T) {
	b := NewMemoryBackend(0)
	b.Set("k", &Entry{Value: []byte("v"), ExpiresAt: time.Now().Add(-time.Second)})
	if _, ok := b.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fb, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	fb.Set("market:AAPL", &Entry{Value: []byte("payload"), ExpiresAt: time.Now().Add(time.Minute)})

	fb2, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entry, ok := fb2.Get("market:AAPL")
	if !ok || string(entry.Value) != "payload" {
		t.Fatalf("expected reopened backend to recover entry, got %v %v", entry, ok)
	}
}

func TestFileBackendRepairDropsMissingBlob(t *testing.T) {
	dir := t.TempDir()
	fb, _ := NewFileBackend(dir)
	fb.Set("market:AAPL", &Entry{Value: []byte("x"), ExpiresAt: time.Now().Add(time.Minute)})

	blob := dir + "/" + blobName("market:AAPL")
	if err := os.Remove(blob); err != nil {
		t.Fatalf("remove blob: %v", err)
	}

	fb2, _ := NewFileBackend(dir)
	if _, ok := fb2.Get("market:AAPL"); ok {
		t.Fatal("expected repair to drop index entry with a missing blob")
	}
}

func TestUnifiedManagerPromotesFromFallback(t *testing.T) {
	primary := NewMemoryBackend(0)
	fallback := NewMemoryBackend(0)
	mgr := NewUnifiedManager(primary, []Backend{fallback}, nil)
	defer mgr.Close()

	fallback.Set(Key("stock_data", "AAPL", nil), &Entry{Value: []byte("v"), ExpiresAt: time.Now().Add(time.Minute)})

	val, ok := mgr.Get("stock_data", "AAPL", nil)
	if !ok || string(val) != "v" {
		t.Fatalf("expected hit via fallback, got %v %v", val, ok)
	}
	if _, ok := primary.Get(Key("stock_data", "AAPL", nil)); !ok {
		t.Fatal("expected fallback hit to be promoted to primary")
	}
}

// TestUnifiedManagerSetWritesOnlyToPrimary: Set writes only to the
// primary backend; fallbacks populate lazily through Get's read-through
// promotion instead.
func TestUnifiedManagerSetWritesOnlyToPrimary(t *testing.T) {
	primary := NewMemoryBackend(0)
	fallback := NewMemoryBackend(0)
	mgr := NewUnifiedManager(primary, []Backend{fallback}, nil)
	defer mgr.Close()

	mgr.Set("stock_data", "AAPL", nil, []byte("v"), DataTypeStock)

	ck := Key("stock_data", "AAPL", nil)
	if _, ok := primary.Get(ck); !ok {
		t.Fatal("expected primary to hold the set entry")
	}
	if _, ok := fallback.Get(ck); ok {
		t.Fatal("expected fallback to stay untouched by Set")
	}
}

// TestUnifiedManagerZeroTTLNeverExpires: a zero TTL means the entry
// stays until an explicit delete or clear.
func TestUnifiedManagerZeroTTLNeverExpires(t *testing.T) {
	primary := NewMemoryBackend(0)
	mgr := NewUnifiedManager(primary, nil, nil)
	defer mgr.Close()

	mgr.Set("fundamentals", "AAPL", nil, []byte("v"), DataTypeFundamentals, 0)

	ck := Key("fundamentals", "AAPL", nil)
	entry, ok := primary.Get(ck)
	if !ok {
		t.Fatal("expected entry to be set")
	}
	if !entry.ExpiresAt.IsZero() {
		t.Fatalf("expected zero ExpiresAt for ttl_seconds=0, got %v", entry.ExpiresAt)
	}
	if entry.IsExpired() {
		t.Fatal("expected a ttl_seconds=0 entry to never read as expired")
	}

	if val, ok := mgr.Get("fundamentals", "AAPL", nil); !ok || string(val) != "v" {
		t.Fatalf("expected indefinite hit before explicit delete, got %v %v", val, ok)
	}

	mgr.Delete("fundamentals", "AAPL", nil)
	if _, ok := mgr.Get("fundamentals", "AAPL", nil); ok {
		t.Fatal("expected explicit delete to remove the never-expiring entry")
	}
}

func TestSmartTTLPolicyScalesWithAccessFrequency(t *testing.T) {
	p := NewSmartTTLPolicy(TTLRule{
		Pattern:      "quote:*",
		BaseTTL:      10 * time.Minute,
		AccessFactor: 2.0,
		MinTTL:       time.Minute,
		MaxTTL:       time.Hour,
	})

	// 10 recent accesses at factor 2.0: multiplier min(10*2/10, 3) = 2.
	for i := 0; i < 10; i++ {
		p.RecordAccess("quote:600519:market=CN-A")
	}
	if got := p.Adjust("quote:600519:market=CN-A", time.Hour); got != 20*time.Minute {
		t.Fatalf("expected base*2 for a warm key, got %v", got)
	}

	// A cold matching key computes a near-zero multiplier and clamps to
	// the rule's floor.
	if got := p.Adjust("quote:000001:market=CN-A", time.Hour); got != time.Minute {
		t.Fatalf("expected MinTTL for a cold key, got %v", got)
	}

	// A key matching no rule keeps the caller's TTL untouched.
	if got := p.Adjust("fundamentals:600519:market=CN-A", time.Hour); got != time.Hour {
		t.Fatalf("expected pass-through TTL for an unmatched key, got %v", got)
	}
}

func TestSmartTTLPolicyCapsMultiplier(t *testing.T) {
	p := NewSmartTTLPolicy(TTLRule{
		Pattern:      "quote:*",
		BaseTTL:      10 * time.Minute,
		AccessFactor: 2.0,
		MinTTL:       time.Minute,
		MaxTTL:       time.Hour,
	})
	// 100 accesses would compute multiplier 20; the formula caps it at 3.
	for i := 0; i < 100; i++ {
		p.RecordAccess("quote:hot")
	}
	if got := p.Adjust("quote:hot", time.Hour); got != 30*time.Minute {
		t.Fatalf("expected the multiplier capped at 3.0, got %v", got)
	}
}

func TestSmartTTLPolicyFirstMatchingRuleWins(t *testing.T) {
	p := NewSmartTTLPolicy(
		TTLRule{Pattern: "news:*", BaseTTL: 15 * time.Minute, AccessFactor: 10.0, MinTTL: time.Minute, MaxTTL: time.Hour},
		TTLRule{Pattern: "news:breaking*", BaseTTL: time.Minute, AccessFactor: 10.0, MinTTL: time.Second, MaxTTL: 2 * time.Minute},
	)
	// One access at factor 10: multiplier min(1*10/10, 3) = 1, so the TTL
	// equals the matched rule's base. The broader first rule shadows the
	// more specific second one.
	p.RecordAccess("news:breaking:0700.HK")
	if got := p.Adjust("news:breaking:0700.HK", time.Hour); got != 15*time.Minute {
		t.Fatalf("expected the first matching rule's base TTL, got %v", got)
	}
}
