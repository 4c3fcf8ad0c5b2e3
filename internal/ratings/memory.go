package ratings

import (
	"context"
	"sort"
	"sync"
)

type ratingKey struct {
	kind     Kind
	subject  string
	reviewer string
}

// MemoryRepository keeps ratings in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	ratings map[ratingKey]*Rating
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{ratings: make(map[ratingKey]*Rating)}
}

// Upsert inserts r or replaces the score and comment of the existing rating
// by the same reviewer. r is updated with the stored ID and CreatedAt.
func (m *MemoryRepository) Upsert(_ context.Context, r *Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ratingKey{r.Kind, r.SubjectID, r.ReviewerID}
	if existing, ok := m.ratings[k]; ok {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	}
	cp := *r
	m.ratings[k] = &cp
	return nil
}

// Get returns the rating by reviewer of the given subject.
func (m *MemoryRepository) Get(_ context.Context, kind Kind, subjectID, reviewerID string) (*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.ratings[ratingKey{kind, subjectID, reviewerID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns the ratings of a subject, newest first.
func (m *MemoryRepository) List(_ context.Context, kind Kind, subjectID string, limit, offset int) ([]*Rating, error) {
	m.mu.RLock()
	var out []*Rating
	for k, r := range m.ratings {
		if k.kind == kind && k.subject == subjectID {
			cp := *r
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ReviewerID < out[j].ReviewerID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Summary returns the count and mean score of a subject's ratings.
func (m *MemoryRepository) Summary(_ context.Context, kind Kind, subjectID string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Summary{Kind: kind, SubjectID: subjectID}
	total := 0
	for k, r := range m.ratings {
		if k.kind == kind && k.subject == subjectID {
			s.Count++
			total += r.Score
		}
	}
	if s.Count > 0 {
		s.Average = float64(total) / float64(s.Count)
	}
	return s, nil
}
