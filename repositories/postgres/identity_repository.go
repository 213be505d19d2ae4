package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"go.uber.org/zap"
)

// IdentityRepository implements the repositories.IdentityRepository interface
type IdentityRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewIdentityRepository creates a new provider identity repository
func NewIdentityRepository(db *DB, logger *zap.Logger) repositories.IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the link for a provider account
func (r *IdentityRepository) Get(ctx context.Context, provider, providerUserID string) (*models.OAuthIdentity, error) {
	query := `
		SELECT provider, provider_user_id, user_id, created_at
		FROM oauth_identities
		WHERE provider = $1 AND provider_user_id = $2
	`

	executor := GetExecutor(ctx, r.db)
	identity := &models.OAuthIdentity{}

	err := executor.QueryRowContext(ctx, query, provider, providerUserID).Scan(
		&identity.Provider,
		&identity.ProviderUserID,
		&identity.UserID,
		&identity.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// Link records a provider account link
func (r *IdentityRepository) Link(ctx context.Context, identity *models.OAuthIdentity) error {
	query := `
		INSERT INTO oauth_identities (provider, provider_user_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		identity.Provider,
		identity.ProviderUserID,
		identity.UserID,
		identity.CreatedAt,
	)

	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return services.ErrDuplicateIdentity
		}
		return fmt.Errorf("failed to link identity: %w", err)
	}

	r.logger.Debug("identity linked",
		zap.String("provider", identity.Provider),
		zap.Int64("user_id", identity.UserID))
	return nil
}

// ListByUser retrieves all provider links of a user
func (r *IdentityRepository) ListByUser(ctx context.Context, userID int64) ([]*models.OAuthIdentity, error) {
	query := `
		SELECT provider, provider_user_id, user_id, created_at
		FROM oauth_identities
		WHERE user_id = $1
		ORDER BY provider
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*models.OAuthIdentity
	for rows.Next() {
		identity := &models.OAuthIdentity{}
		if err := rows.Scan(&identity.Provider, &identity.ProviderUserID, &identity.UserID, &identity.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identities: %w", err)
	}

	return identities, nil
}
