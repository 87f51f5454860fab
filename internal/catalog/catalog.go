// Package catalog maintains the read-only registry of model descriptors.
//
// The active descriptor set lives behind a single atomic pointer. Reload
// builds a complete replacement snapshot and swaps it in one store, so
// concurrent readers always observe either the old table or the new one,
// never a mix.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// TagGeneral is the fallback capability tag every catalog should carry.
const TagGeneral = "general"

// ModelDescriptor describes one routable model. Descriptors are immutable
// once loaded; reloads replace the whole set.
type ModelDescriptor struct {
	ID       string // Model identifier, unique within the catalog.
	Provider string // Owning provider name.

	CostPer1KMicros int64 // Cost per 1000 tokens, in credit micros.
	RateLimitRPM    int   // Admitted requests per minute.

	QualityScore   float64  // Relative quality in [0, 1].
	CapabilityTags []string // Lowercased capability tags.
	PriorityRank   int      // Provider preference, lower ranks first.
}

// HasTag reports whether the descriptor carries the given capability tag.
func (d *ModelDescriptor) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range d.CapabilityTags {
		if t == tag {
			return true
		}
	}
	return false
}

// snapshot is one immutable view of the catalog.
type snapshot struct {
	byID     map[string]*ModelDescriptor
	byTag    map[string][]*ModelDescriptor
	ordered  []*ModelDescriptor
	loadedAt time.Time
}

// Catalog is the atomic registry of model descriptors.
type Catalog struct {
	snap atomic.Pointer[snapshot]
}

// New constructs an empty catalog.
func New() *Catalog {
	c := &Catalog{}
	c.snap.Store(&snapshot{
		byID:  map[string]*ModelDescriptor{},
		byTag: map[string][]*ModelDescriptor{},
	})
	return c
}

// Replace swaps in a new descriptor set. Descriptors with empty or duplicate
// IDs are rejected so a bad reload never clobbers a working catalog.
func (c *Catalog) Replace(descriptors []ModelDescriptor) error {
	byID := make(map[string]*ModelDescriptor, len(descriptors))
	ordered := make([]*ModelDescriptor, 0, len(descriptors))

	for i := range descriptors {
		d := descriptors[i]
		d.ID = strings.TrimSpace(d.ID)
		d.Provider = strings.TrimSpace(d.Provider)
		if d.ID == "" {
			return fmt.Errorf("catalog: descriptor %d has empty id", i)
		}
		if d.Provider == "" {
			return fmt.Errorf("catalog: model %s has empty provider", d.ID)
		}
		if _, dup := byID[d.ID]; dup {
			return fmt.Errorf("catalog: duplicate model id %s", d.ID)
		}
		tags := make([]string, 0, len(d.CapabilityTags))
		for _, tag := range d.CapabilityTags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				tags = append(tags, tag)
			}
		}
		d.CapabilityTags = tags

		copied := d
		byID[copied.ID] = &copied
		ordered = append(ordered, &copied)
	}

	// Stable order for every reader: priority rank, then id.
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].PriorityRank != ordered[j].PriorityRank {
			return ordered[i].PriorityRank < ordered[j].PriorityRank
		}
		return ordered[i].ID < ordered[j].ID
	})

	byTag := make(map[string][]*ModelDescriptor)
	for _, d := range ordered {
		for _, tag := range d.CapabilityTags {
			byTag[tag] = append(byTag[tag], d)
		}
	}

	c.snap.Store(&snapshot{
		byID:     byID,
		byTag:    byTag,
		ordered:  ordered,
		loadedAt: time.Now().UTC(),
	})
	log.Infof("catalog: loaded %d models", len(ordered))
	return nil
}

// Get returns the descriptor for a model id, if present.
func (c *Catalog) Get(modelID string) (*ModelDescriptor, bool) {
	snap := c.snap.Load()
	d, ok := snap.byID[strings.TrimSpace(modelID)]
	return d, ok
}

// ByTag returns descriptors carrying the given tag, ordered by priority
// rank and id.
func (c *Catalog) ByTag(tag string) []*ModelDescriptor {
	snap := c.snap.Load()
	list := snap.byTag[strings.ToLower(strings.TrimSpace(tag))]
	out := make([]*ModelDescriptor, len(list))
	copy(out, list)
	return out
}

// All returns every descriptor ordered by priority rank and id.
func (c *Catalog) All() []*ModelDescriptor {
	snap := c.snap.Load()
	out := make([]*ModelDescriptor, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// Len returns the number of loaded descriptors.
func (c *Catalog) Len() int {
	return len(c.snap.Load().ordered)
}

// LoadedAt returns when the active snapshot was installed.
func (c *Catalog) LoadedAt() time.Time {
	return c.snap.Load().loadedAt
}
