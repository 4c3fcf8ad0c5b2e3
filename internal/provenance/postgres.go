package provenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore persists provenance chains to the provenance_events table.
// It implements the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// History implements HistoryReader.
func (s *PostgresStore) History(ctx context.Context, productID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, ts_ms, status, hash, previous_hash
		 FROM provenance_events
		 WHERE product_id = $1
		 ORDER BY ts_ms ASC, id ASC`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("query provenance history: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ProductID, &e.Timestamp, &e.Status, &e.Hash, &e.PreviousHash); err != nil {
			return nil, fmt.Errorf("scan provenance row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Submit implements SubmissionSink.
// It takes a transaction-scoped advisory lock keyed on the product ID, reads
// the chain tip, checks the submission extends it, and inserts. The unique
// (product_id, previous_hash) index backstops writers that bypass the lock.
func (s *PostgresStore) Submit(ctx context.Context, sub *Submission) error {
	if sub == nil {
		return fmt.Errorf("%w: nil submission", ErrMalformedInput)
	}
	if err := ValidateEvent(&sub.Event); err != nil {
		return err
	}
	ev := &sub.Event

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", ev.ProductID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var tip *Event
	var t Event
	err = tx.QueryRow(ctx,
		`SELECT product_id, ts_ms, status, hash, previous_hash
		 FROM provenance_events
		 WHERE product_id = $1
		 ORDER BY ts_ms DESC, id DESC LIMIT 1`, ev.ProductID,
	).Scan(&t.ProductID, &t.Timestamp, &t.Status, &t.Hash, &t.PreviousHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read chain tip: %w", err)
	default:
		tip = &t
	}

	if err := checkExtends(tip, sub); err != nil {
		return err
	}

	var meta any
	if len(sub.Metadata) > 0 {
		meta = string(sub.Metadata)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO provenance_events
		   (product_id, ts_ms, status, hash, previous_hash, actor, metadata, metadata_digest, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ProductID, ev.Timestamp, string(ev.Status), ev.Hash, ev.PreviousHash,
		sub.Actor, meta, sub.MetadataDigest, sub.RecordedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
		return fmt.Errorf("insert provenance event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit provenance tx: %w", err)
	}

	s.logger.Debug("provenance event stored",
		zap.String("product_id", ev.ProductID),
		zap.String("status", string(ev.Status)),
		zap.String("actor", sub.Actor),
	)
	return nil
}

// CountProducts returns the number of products with recorded history.
func (s *PostgresStore) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(DISTINCT product_id) FROM provenance_events",
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count provenance products: %w", err)
	}
	return n, nil
}

// Products returns the IDs of all products with recorded history, sorted.
func (s *PostgresStore) Products(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT product_id FROM provenance_events ORDER BY product_id")
	if err != nil {
		return nil, fmt.Errorf("list provenance products: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
