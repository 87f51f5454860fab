package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/router-for-me/CreditRouter/internal/analyzer"
)

func TestFingerprintNormalizesWhitespace(t *testing.T) {
	a := Fingerprint("  hello   world \n", "model-a", nil)
	b := Fingerprint("hello world", "model-a", nil)
	if a != b {
		t.Fatalf("whitespace variants should collide: %s vs %s", a, b)
	}

	c := Fingerprint("hello world", "model-b", nil)
	if a == c {
		t.Fatalf("different models must not collide")
	}
}

func TestFingerprintParamsOrderIndependent(t *testing.T) {
	a := Fingerprint("p", "m", map[string]string{"x": "1", "y": "2"})
	b := Fingerprint("p", "m", map[string]string{"y": "2", "x": "1"})
	if a != b {
		t.Fatalf("param order changed the fingerprint")
	}
}

func TestMemoryLookupCountsHits(t *testing.T) {
	m := NewMemory(16)
	ctx := context.Background()

	fp := Fingerprint("prompt", "model-a", nil)
	if errPut := m.Put(ctx, Entry{Fingerprint: fp, Response: "cached", ModelUsed: "model-a", TTL: time.Hour}); errPut != nil {
		t.Fatalf("put: %v", errPut)
	}

	for want := int64(1); want <= 3; want++ {
		entry, ok, errLookup := m.Lookup(ctx, fp)
		if errLookup != nil || !ok {
			t.Fatalf("lookup %d: ok=%v err=%v", want, ok, errLookup)
		}
		if entry.HitCount != want {
			t.Fatalf("expected hit count %d, got %d", want, entry.HitCount)
		}
	}
}

func TestMemoryExpiryIsLazy(t *testing.T) {
	m := NewMemory(16)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	fp := Fingerprint("prompt", "model-a", nil)
	if errPut := m.Put(ctx, Entry{Fingerprint: fp, Response: "cached", TTL: time.Hour}); errPut != nil {
		t.Fatalf("put: %v", errPut)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := m.Lookup(ctx, fp); ok {
		t.Fatalf("expired entry served")
	}
	if m.Len() != 0 {
		t.Fatalf("expired entry not evicted on lookup, len=%d", m.Len())
	}
}

func TestMemorySweepRemovesExpired(t *testing.T) {
	m := NewMemory(16)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		fp := Fingerprint(fmt.Sprintf("prompt-%d", i), "model-a", nil)
		if errPut := m.Put(ctx, Entry{Fingerprint: fp, TTL: time.Hour}); errPut != nil {
			t.Fatalf("put: %v", errPut)
		}
	}

	now = now.Add(2 * time.Hour)
	if removed := m.Sweep(); removed != 5 {
		t.Fatalf("expected 5 swept, got %d", removed)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty cache after sweep, len=%d", m.Len())
	}
}

func TestMemoryCapacityEviction(t *testing.T) {
	m := NewMemory(3)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	var first string
	for i := 0; i < 4; i++ {
		fp := Fingerprint(fmt.Sprintf("prompt-%d", i), "model-a", nil)
		if i == 0 {
			first = fp
		}
		if errPut := m.Put(ctx, Entry{Fingerprint: fp, TTL: time.Hour, CreatedAt: now}); errPut != nil {
			t.Fatalf("put: %v", errPut)
		}
		now = now.Add(time.Second)
	}

	if m.Len() != 3 {
		t.Fatalf("expected capacity bound of 3, len=%d", m.Len())
	}
	if _, ok, _ := m.Lookup(ctx, first); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
}

func TestTTLByTaskType(t *testing.T) {
	if got := TTLFor(analyzer.TaskCoding, "refactor my parser"); got != 24*time.Hour {
		t.Fatalf("coding ttl: got %s", got)
	}
	if got := TTLFor(analyzer.TaskCreative, "tell me a story"); got != time.Hour {
		t.Fatalf("creative ttl: got %s", got)
	}
	if got := TTLFor(analyzer.TaskGeneral, "what is a monad"); got != 7*24*time.Hour {
		t.Fatalf("reference ttl: got %s", got)
	}
}
