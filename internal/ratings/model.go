// Package ratings stores buyer ratings of products and stores.
package ratings

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a rating does not exist.
	ErrNotFound = errors.New("rating not found")

	// ErrInvalidRating is returned for unknown kinds, empty IDs or
	// out-of-range scores.
	ErrInvalidRating = errors.New("invalid rating")
)

// Kind is what a rating is about.
type Kind string

const (
	KindProduct Kind = "product"
	KindStore   Kind = "store"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindProduct || k == KindStore
}

const (
	MinScore = 1
	MaxScore = 5

	maxCommentLen = 2000
)

// Rating is one reviewer's score for a product or store. A reviewer holds at
// most one rating per subject; rating again replaces the previous one.
type Rating struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	SubjectID  string    `json:"subject_id"`
	ReviewerID string    `json:"reviewer_id"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Summary aggregates the ratings of one subject.
type Summary struct {
	Kind      Kind    `json:"kind"`
	SubjectID string  `json:"subject_id"`
	Count     int     `json:"count"`
	Average   float64 `json:"average"`
}
