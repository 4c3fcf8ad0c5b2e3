package ratings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores ratings in the ratings table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts r or updates the existing rating by the same reviewer,
// keeping its original ID and created_at.
func (p *PostgresRepository) Upsert(ctx context.Context, r *Rating) error {
	query := `
		INSERT INTO ratings (id, kind, subject_id, reviewer_id, score, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (kind, subject_id, reviewer_id) DO UPDATE
		SET score = EXCLUDED.score,
		    comment = EXCLUDED.comment,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err := p.db.QueryRow(ctx, query,
		r.ID, r.Kind, r.SubjectID, r.ReviewerID, r.Score, r.Comment, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

// Get returns the rating by reviewer of the given subject.
func (p *PostgresRepository) Get(ctx context.Context, kind Kind, subjectID, reviewerID string) (*Rating, error) {
	query := `
		SELECT id, kind, subject_id, reviewer_id, score, comment, created_at, updated_at
		FROM ratings
		WHERE kind = $1 AND subject_id = $2 AND reviewer_id = $3`

	r, err := scanRating(p.db.QueryRow(ctx, query, kind, subjectID, reviewerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// List returns the ratings of a subject, newest first.
func (p *PostgresRepository) List(ctx context.Context, kind Kind, subjectID string, limit, offset int) ([]*Rating, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, kind, subject_id, reviewer_id, score, comment, created_at, updated_at
		FROM ratings
		WHERE kind = $1 AND subject_id = $2
		ORDER BY updated_at DESC, reviewer_id
		LIMIT $3 OFFSET $4`

	rows, err := p.db.Query(ctx, query, kind, subjectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var out []*Rating
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary returns the count and mean score of a subject's ratings.
func (p *PostgresRepository) Summary(ctx context.Context, kind Kind, subjectID string) (*Summary, error) {
	s := &Summary{Kind: kind, SubjectID: subjectID}
	err := p.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0)::float8 FROM ratings WHERE kind = $1 AND subject_id = $2`,
		kind, subjectID,
	).Scan(&s.Count, &s.Average)
	if err != nil {
		return nil, fmt.Errorf("summarise ratings: %w", err)
	}
	return s, nil
}

func scanRating(row pgx.Row) (*Rating, error) {
	var r Rating
	err := row.Scan(&r.ID, &r.Kind, &r.SubjectID, &r.ReviewerID, &r.Score, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
