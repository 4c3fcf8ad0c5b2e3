package ratings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository is the persistence interface for the ratings service.
// *MemoryRepository and *PostgresRepository satisfy it.
type Repository interface {
	Upsert(ctx context.Context, r *Rating) error
	Get(ctx context.Context, kind Kind, subjectID, reviewerID string) (*Rating, error)
	List(ctx context.Context, kind Kind, subjectID string, limit, offset int) ([]*Rating, error)
	Summary(ctx context.Context, kind Kind, subjectID string) (*Summary, error)
}

// Service validates and records ratings.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a ratings Service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Rate records reviewerID's score for the subject, replacing any earlier
// rating by the same reviewer.
func (s *Service) Rate(ctx context.Context, kind Kind, subjectID, reviewerID string, score int, comment string) (*Rating, error) {
	comment = strings.TrimSpace(comment)
	switch {
	case !kind.Valid():
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRating, kind)
	case subjectID == "":
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidRating)
	case reviewerID == "":
		return nil, fmt.Errorf("%w: reviewer id is required", ErrInvalidRating)
	case score < MinScore || score > MaxScore:
		return nil, fmt.Errorf("%w: score must be between %d and %d", ErrInvalidRating, MinScore, MaxScore)
	case len(comment) > maxCommentLen:
		return nil, fmt.Errorf("%w: comment exceeds %d bytes", ErrInvalidRating, maxCommentLen)
	}

	now := s.now().UTC()
	r := &Rating{
		ID:         uuid.New(),
		Kind:       kind,
		SubjectID:  subjectID,
		ReviewerID: reviewerID,
		Score:      score,
		Comment:    comment,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Upsert(ctx, r); err != nil {
		return nil, fmt.Errorf("rate %s %q: %w", kind, subjectID, err)
	}

	s.logger.Info("rating recorded",
		zap.String("kind", string(kind)),
		zap.String("subject_id", subjectID),
		zap.String("reviewer_id", reviewerID),
		zap.Int("score", score),
	)
	return r, nil
}

// Get returns one reviewer's rating of a subject.
func (s *Service) Get(ctx context.Context, kind Kind, subjectID, reviewerID string) (*Rating, error) {
	return s.repo.Get(ctx, kind, subjectID, reviewerID)
}

// List returns a page of a subject's ratings together with its summary.
func (s *Service) List(ctx context.Context, kind Kind, subjectID string, limit, offset int) ([]*Rating, *Summary, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRating, kind)
	}
	list, err := s.repo.List(ctx, kind, subjectID, limit, offset)
	if err != nil {
		return nil, nil, err
	}
	sum, err := s.repo.Summary(ctx, kind, subjectID)
	if err != nil {
		return nil, nil, err
	}
	return list, sum, nil
}

// Summary returns the count and mean score of a subject's ratings.
func (s *Service) Summary(ctx context.Context, kind Kind, subjectID string) (*Summary, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRating, kind)
	}
	return s.repo.Summary(ctx, kind, subjectID)
}
