package service

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// IdentifierFilter is a bloom-filter guard in front of the policy store.
// A negative answer is definitive, so lookups for identifiers that were
// never created skip Postgres entirely; false positives just fall through
// to the real lookup.
type IdentifierFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewIdentifierFilter sizes the filter for the given expected population
// at a 1% false-positive rate.
func NewIdentifierFilter(expected uint) *IdentifierFilter {
	if expected < 1024 {
		expected = 1024
	}
	return &IdentifierFilter{
		filter: bloom.NewWithEstimates(expected, 0.01),
	}
}

// Seed loads the current identifier namespace, typically at startup.
func (f *IdentifierFilter) Seed(identifiers []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range identifiers {
		f.filter.AddString(id)
	}
}

// Add registers a newly created code or alias.
func (f *IdentifierFilter) Add(identifier string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(identifier)
}

// MayExist reports whether the identifier could be in the namespace.
func (f *IdentifierFilter) MayExist(identifier string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(identifier)
}
