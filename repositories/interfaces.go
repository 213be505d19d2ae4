package repositories

import (
	"context"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles local identity data operations.
// Lookups of a missing user return an error matching services.ErrUserNotFound.
type UserRepository interface {
	// Create inserts a new user and assigns its ID
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByUsername retrieves a user by username (case-insensitive)
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmail retrieves a user by email (case-insensitive)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// List retrieves users ordered by ID with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// UpdateRoles sets the privilege flags of a user and returns the updated row
	UpdateRoles(ctx context.Context, id int64, isAdmin, isStaff bool) (*models.User, error)
}

// IdentityRepository handles provider identity links
type IdentityRepository interface {
	// Get retrieves the link for a provider account.
	// A missing link returns an error matching services.ErrUserNotFound.
	Get(ctx context.Context, provider, providerUserID string) (*models.OAuthIdentity, error)

	// Link records that a provider account belongs to a local user.
	// A provider account already linked returns services.ErrDuplicateIdentity.
	Link(ctx context.Context, identity *models.OAuthIdentity) error

	// ListByUser retrieves all links of a local user
	ListByUser(ctx context.Context, userID int64) ([]*models.OAuthIdentity, error)
}

// AuditRepository handles authentication audit log operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByUserID retrieves audit logs for a user with pagination
	GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.AuditLog, error)

	// GetByDateRange retrieves audit logs within a date range
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error)

	// DeleteBefore removes entries older than the cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users      UserRepository
	Identities IdentityRepository
	AuditLogs  AuditRepository
}
