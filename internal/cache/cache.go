// Package cache stores successful provider responses keyed by request
// fingerprint. A hit short-circuits the whole routing pipeline, so cache
// failures are deliberately soft: callers treat any error as a miss.
package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/router-for-me/CreditRouter/internal/analyzer"
	log "github.com/sirupsen/logrus"
)

// TTLs by prompt category.
const (
	ttlShort     = time.Hour
	ttlDay       = 24 * time.Hour
	ttlReference = 7 * 24 * time.Hour
)

// Entry is one cached response.
type Entry struct {
	Fingerprint string
	Response    string
	ModelUsed   string
	TokensUsed  int64
	CreatedAt   time.Time
	TTL         time.Duration
	HitCount    int64
}

// Store is the response-cache contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Lookup returns the entry for a fingerprint and bumps its hit count.
	// A miss returns (nil, false, nil); errors are advisory.
	Lookup(ctx context.Context, fingerprint string) (*Entry, bool, error)

	// Put stores an entry under its fingerprint.
	Put(ctx context.Context, entry Entry) error

	// Close releases backend resources.
	Close() error
}

// TTLFor picks the retention window for a response: reference lookups keep
// for a week, coding and analysis answers for a day, everything else an hour.
func TTLFor(taskType analyzer.TaskType, prompt string) time.Duration {
	if analyzer.LooksLikeReference(prompt) {
		return ttlReference
	}
	switch taskType {
	case analyzer.TaskCoding, analyzer.TaskAnalysis:
		return ttlDay
	default:
		return ttlShort
	}
}

// memoryEntry wraps an Entry with an atomic hit counter.
type memoryEntry struct {
	entry Entry
	hits  atomic.Int64
}

// Memory is the in-process cache backend. Reads and writes go through a
// sync.Map so simultaneous readers never contend on a single lock; expired
// entries are dropped lazily on lookup and swept periodically.
type Memory struct {
	entries  sync.Map // fingerprint -> *memoryEntry
	count    atomic.Int64
	capacity int

	// now is swappable for tests.
	now func() time.Time
}

// NewMemory constructs a memory cache bounded to capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Memory{capacity: capacity, now: time.Now}
}

// Lookup implements Store.
func (m *Memory) Lookup(_ context.Context, fingerprint string) (*Entry, bool, error) {
	value, ok := m.entries.Load(fingerprint)
	if !ok {
		return nil, false, nil
	}
	me := value.(*memoryEntry)

	if m.expired(me, m.now()) {
		m.remove(fingerprint)
		return nil, false, nil
	}

	hits := me.hits.Add(1)
	out := me.entry
	out.HitCount = hits
	return &out, true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	me := &memoryEntry{entry: entry}
	if _, loaded := m.entries.Swap(entry.Fingerprint, me); !loaded {
		m.count.Add(1)
	}
	if m.count.Load() > int64(m.capacity) {
		m.evictOldest()
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Len returns the current entry count.
func (m *Memory) Len() int {
	return int(m.count.Load())
}

// Sweep removes expired entries and enforces the capacity bound. It returns
// the number of entries removed.
func (m *Memory) Sweep() int {
	now := m.now()
	removed := 0
	m.entries.Range(func(key, value any) bool {
		if m.expired(value.(*memoryEntry), now) {
			if m.remove(key.(string)) {
				removed++
			}
		}
		return true
	})
	for m.count.Load() > int64(m.capacity) {
		if !m.evictOldest() {
			break
		}
		removed++
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := m.Sweep(); removed > 0 {
					log.Debugf("cache: swept %d entries", removed)
				}
			}
		}
	}()
}

func (m *Memory) expired(me *memoryEntry, now time.Time) bool {
	return me.entry.TTL > 0 && now.After(me.entry.CreatedAt.Add(me.entry.TTL))
}

func (m *Memory) remove(fingerprint string) bool {
	if _, loaded := m.entries.LoadAndDelete(fingerprint); loaded {
		m.count.Add(-1)
		return true
	}
	return false
}

// evictOldest drops the entry with the earliest creation time. Linear scan
// is acceptable at the configured capacities.
func (m *Memory) evictOldest() bool {
	type aged struct {
		key     string
		created time.Time
	}
	var all []aged
	m.entries.Range(func(key, value any) bool {
		all = append(all, aged{key.(string), value.(*memoryEntry).entry.CreatedAt})
		return true
	})
	if len(all) == 0 {
		return false
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].created.Equal(all[j].created) {
			return all[i].created.Before(all[j].created)
		}
		return all[i].key < all[j].key
	})
	return m.remove(all[0].key)
}
