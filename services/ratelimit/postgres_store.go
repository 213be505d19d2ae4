package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore keeps counters in the rate_limit_counters table so that
// every replica shares one quota per caller.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a counter store backed by PostgreSQL
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Increment implements Store with a single upsert, so concurrent requests
// for the same key serialize on the row lock.
func (p *PostgresStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	query := `
		INSERT INTO rate_limit_counters (scope_key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (scope_key) DO UPDATE SET
			count = CASE WHEN rate_limit_counters.window_start <= $3 THEN 1
			             ELSE rate_limit_counters.count + 1 END,
			window_start = CASE WHEN rate_limit_counters.window_start <= $3 THEN $2
			                    ELSE rate_limit_counters.window_start END
		RETURNING count, window_start
	`

	var (
		count       int
		windowStart time.Time
	)
	err := p.db.QueryRowContext(ctx, query, key, now, now.Add(-window)).Scan(&count, &windowStart)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to upsert rate limit counter: %w", err)
	}

	return count, windowStart, nil
}

// DeleteExpired implements Store
func (p *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE window_start <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired counters: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
