package provenance

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]Event
	subs   map[string][]Submission
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains: make(map[string][]Event),
		subs:   make(map[string][]Submission),
	}
}

// History implements HistoryReader. The returned slice is a copy.
func (s *MemoryStore) History(_ context.Context, productID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[productID]
	out := make([]Event, len(chain))
	copy(out, chain)
	return out, nil
}

// Submit implements SubmissionSink.
func (s *MemoryStore) Submit(_ context.Context, sub *Submission) error {
	if sub == nil {
		return fmt.Errorf("%w: nil submission", ErrMalformedInput)
	}
	if err := ValidateEvent(&sub.Event); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	productID := sub.Event.ProductID
	if err := checkExtends(Tip(s.chains[productID]), sub); err != nil {
		return err
	}
	s.chains[productID] = append(s.chains[productID], sub.Event)
	s.subs[productID] = append(s.subs[productID], *sub)
	return nil
}

// Submissions returns the accepted submissions for productID, in order.
func (s *MemoryStore) Submissions(productID string) []Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Submission, len(s.subs[productID]))
	copy(out, s.subs[productID])
	return out
}

// Len returns the number of products with at least one event.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chains)
}

// Products returns the IDs of all products with history, sorted.
func (s *MemoryStore) Products(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.chains))
	for id := range s.chains {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}
