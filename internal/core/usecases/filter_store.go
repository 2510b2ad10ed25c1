package usecases

import (
	"maps"
	"sync"

	"github.com/propmap/propmap/internal/core/domain"
)

// FilterStore holds the committed filters that drive results and the draft
// edits of open filter controls. It never validates: a draft with
// minPrice > maxPrice commits as is.
type FilterStore struct {
	mu        sync.RWMutex
	committed domain.FilterSet
	draft     map[domain.FilterKey]domain.FilterValue
}

// NewFilterStore creates an empty store.
func NewFilterStore() *FilterStore {
	return &FilterStore{draft: make(map[domain.FilterKey]domain.FilterValue)}
}

// SetDraft records an edit. domain.Unset() marks the key for clearing on
// commit. Unknown keys are ignored.
func (s *FilterStore) SetDraft(key domain.FilterKey, value domain.FilterValue) {
	if !key.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft[key] = value
}

// CommitDraft merges the draft into the committed set and clears the draft.
// Keys absent from the draft keep their committed value.
func (s *FilterStore) CommitDraft() domain.FilterSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.committed.Clone()
	for _, key := range domain.FilterKeys {
		if v, ok := s.draft[key]; ok {
			next = next.With(key, v)
		}
	}
	s.committed = next
	clear(s.draft)
	return s.committed.Clone()
}

// DiscardDraft drops every pending edit.
func (s *FilterStore) DiscardDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.draft)
}

// ClearAll resets both the committed filters and the draft.
func (s *FilterStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = domain.FilterSet{}
	clear(s.draft)
}

// SetCommitted replaces the committed filters, e.g. after decoding the URL.
// The draft is left alone.
func (s *FilterStore) SetCommitted(f domain.FilterSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = f.Clone()
}

// Committed returns a copy of the committed filters.
func (s *FilterStore) Committed() domain.FilterSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed.Clone()
}

// Draft returns a copy of the pending edits.
func (s *FilterStore) Draft() map[domain.FilterKey]domain.FilterValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.draft)
}

// HasDraft reports whether any edit is pending.
func (s *FilterStore) HasDraft() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.draft) > 0
}

// Effective is the committed value of key.
func (s *FilterStore) Effective(key domain.FilterKey) domain.FilterValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed.Get(key)
}

// DraftOrCommitted is what an open filter control shows: the draft value if
// one is pending, the committed value otherwise.
func (s *FilterStore) DraftOrCommitted(key domain.FilterKey) domain.FilterValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.draft[key]; ok {
		return v
	}
	return s.committed.Get(key)
}
