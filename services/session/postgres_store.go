package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
)

// PostgresStore keeps handshakes in the oauth_handshakes table so that any
// gateway instance can complete a flow another one started
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a handshake store over an open pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save stores a handshake
func (s *PostgresStore) Save(ctx context.Context, handshake *models.Handshake) error {
	query := `
		INSERT INTO oauth_handshakes (key, provider, nonce, link_user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		handshake.Key,
		handshake.Provider,
		handshake.Nonce,
		handshake.LinkUserID,
		handshake.CreatedAt,
		handshake.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save handshake: %w", err)
	}
	return nil
}

// Consume deletes the row and returns it in one statement
func (s *PostgresStore) Consume(ctx context.Context, key string) (*models.Handshake, error) {
	query := `
		DELETE FROM oauth_handshakes
		WHERE key = $1
		RETURNING key, provider, nonce, link_user_id, created_at, expires_at
	`

	handshake := &models.Handshake{}
	var linkUserID sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&handshake.Key,
		&handshake.Provider,
		&handshake.Nonce,
		&linkUserID,
		&handshake.CreatedAt,
		&handshake.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrUnknownSession
		}
		return nil, fmt.Errorf("failed to consume handshake: %w", err)
	}

	if linkUserID.Valid {
		handshake.LinkUserID = &linkUserID.Int64
	}
	return handshake, nil
}

// DeleteExpired drops handshakes past their deadline at now
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM oauth_handshakes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired handshakes: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
