package civicscreen

import (
	"strings"
	"sync"
)

// Priority ranks an accepted report for dispatch.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts "low", "medium" or "high" in any case.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	default:
		return "", false
	}
}

// PriorityTable maps categories to priorities. Lookups are case-insensitive;
// unknown categories get Default. Safe for concurrent use.
type PriorityTable struct {
	mu      sync.RWMutex
	byCat   map[string]Priority
	Default Priority
}

// NewPriorityTable builds a table from a category→priority map.
func NewPriorityTable(entries map[string]Priority, def Priority) *PriorityTable {
	t := &PriorityTable{byCat: make(map[string]Priority, len(entries)), Default: def}
	for cat, p := range entries {
		t.byCat[normalize(cat)] = p
	}
	return t
}

// DefaultPriorityTable rates safety hazards high, amenity upkeep low and
// everything else medium.
func DefaultPriorityTable() *PriorityTable {
	return NewPriorityTable(map[string]Priority{
		CategorySafety:     PriorityHigh,
		CategoryElectric:   PriorityHigh,
		CategoryRoad:       PriorityMedium,
		CategoryWater:      PriorityMedium,
		CategoryLighting:   PriorityMedium,
		CategorySanitation: PriorityMedium,
		CategoryParks:      PriorityLow,
	}, PriorityMedium)
}

// Set overrides the priority of one category.
func (t *PriorityTable) Set(category string, p Priority) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byCat == nil {
		t.byCat = make(map[string]Priority)
	}
	t.byCat[normalize(category)] = p
}

// Lookup returns the priority for category.
func (t *PriorityTable) Lookup(category string) Priority {
	t.mu.RLock()
	p, ok := t.byCat[normalize(category)]
	t.mu.RUnlock()
	if ok {
		return p
	}
	if t.Default == "" {
		return PriorityMedium
	}
	return t.Default
}
