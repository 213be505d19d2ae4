package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the work factor for stored password hashes
	DefaultBcryptCost = 12

	maxUsernameLength   = 32
	maxUsernameAttempts = 50
)

// Verifier proves that a caller is a known identity, either by password
// or through a provider account link
type Verifier struct {
	users      repositories.UserRepository
	identities repositories.IdentityRepository
	txManager  repositories.TransactionManager
	logger     *zap.Logger
	cost       int

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures a Verifier
type Option func(*Verifier)

// WithBcryptCost overrides the bcrypt work factor
func WithBcryptCost(cost int) Option {
	return func(v *Verifier) {
		v.cost = cost
	}
}

// NewVerifier creates a credential verifier
func NewVerifier(
	users repositories.UserRepository,
	identities repositories.IdentityRepository,
	txManager repositories.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) *Verifier {
	v := &Verifier{
		users:      users,
		identities: identities,
		txManager:  txManager,
		logger:     logger,
		cost:       DefaultBcryptCost,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// HashPassword returns the bcrypt hash stored for a local account
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a secret against the stored hash of the user named by
// identifier. An identifier containing "@" is treated as an email address.
//
// An unknown user returns services.ErrUserNotFound and a wrong secret returns
// services.ErrBadCredentials. Both paths perform one bcrypt comparison.
func (v *Verifier) VerifyPassword(ctx context.Context, identifier, secret string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = v.users.GetByEmail(ctx, identifier)
	} else {
		user, err = v.users.GetByUsername(ctx, identifier)
	}

	if err != nil {
		if services.IsNotFoundError(err) {
			v.compareDummy(secret)
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to look up user", err)
	}

	if !user.HasPassword() {
		v.compareDummy(secret)
		return nil, services.ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(secret)); err != nil {
		return nil, services.ErrBadCredentials
	}

	return user, nil
}

// compareDummy burns one bcrypt comparison so the miss path costs the same as a hit
func (v *Verifier) compareDummy(secret string) {
	v.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), v.cost)
		if err != nil {
			v.logger.Error("failed to build dummy hash", zap.Error(err))
			return
		}
		v.dummyHash = hash
	})
	if v.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(secret))
	}
}

// RegisterInput is a new local account
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a local account with a hashed password
func (v *Verifier) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	hash, err := HashPassword(input.Password, v.cost)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(strings.TrimSpace(input.Username), strings.TrimSpace(input.Email), &hash)
	if err := v.users.Create(ctx, user); err != nil {
		if services.IsConflictError(err) {
			return nil, err
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	v.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// VerifyOAuthIdentity resolves a provider account to a local user.
//
// A known link returns its user. On first sight the account is linked to
// profile.LinkUserID when set, otherwise a new local user is provisioned, in
// one transaction. An existing link to a user other than profile.LinkUserID
// returns services.ErrProviderMismatch.
func (v *Verifier) VerifyOAuthIdentity(ctx context.Context, provider, providerUserID string, profile models.OAuthProfile) (*models.User, error) {
	if provider == "" || providerUserID == "" {
		return nil, services.ErrInvalidInput
	}

	user, err := v.resolveLinked(ctx, provider, providerUserID, profile)
	if err == nil || !services.IsNotFoundError(err) {
		return user, err
	}

	user, err = v.provision(ctx, provider, providerUserID, profile)
	if services.IsDuplicateIdentityError(err) {
		// Another request linked the same account first
		return v.resolveLinked(ctx, provider, providerUserID, profile)
	}
	return user, err
}

// resolveLinked returns services.ErrUserNotFound when no link exists yet
func (v *Verifier) resolveLinked(ctx context.Context, provider, providerUserID string, profile models.OAuthProfile) (*models.User, error) {
	identity, err := v.identities.Get(ctx, provider, providerUserID)
	if err != nil {
		if services.IsNotFoundError(err) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to look up identity", err)
	}

	if profile.LinkUserID != nil && *profile.LinkUserID != identity.UserID {
		v.logger.Warn("provider account linked to another user",
			zap.String("provider", provider),
			zap.Int64("linked_user_id", identity.UserID),
			zap.Int64("requested_user_id", *profile.LinkUserID))
		return nil, services.ErrProviderMismatch
	}

	user, err := v.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if services.IsNotFoundError(err) {
			// Link points at a deleted user
			return nil, services.WrapInternal("linked user is missing", err)
		}
		return nil, services.WrapInternal("failed to load linked user", err)
	}
	return user, nil
}

func (v *Verifier) provision(ctx context.Context, provider, providerUserID string, profile models.OAuthProfile) (*models.User, error) {
	var user *models.User

	err := v.txManager.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if profile.LinkUserID != nil {
			existing, err := v.users.GetByID(txCtx, *profile.LinkUserID)
			if err != nil {
				return err
			}
			user = existing
		} else {
			username, err := v.uniqueUsername(txCtx, provider, profile)
			if err != nil {
				return err
			}
			email := profile.Email
			if email == "" {
				email = fmt.Sprintf("%s+%s@oauth.invalid", provider, providerUserID)
			}
			user = models.NewUser(username, email, nil)
			if err := v.users.Create(txCtx, user); err != nil {
				return err
			}
		}

		return v.identities.Link(txCtx, &models.OAuthIdentity{
			Provider:       provider,
			ProviderUserID: providerUserID,
			UserID:         user.ID,
			CreatedAt:      time.Now().UTC(),
		})
	})
	if err != nil {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to provision provider account", err)
	}

	v.logger.Info("provider account linked",
		zap.String("provider", provider),
		zap.Int64("user_id", user.ID),
		zap.Bool("new_user", profile.LinkUserID == nil))
	return user, nil
}

// uniqueUsername derives a username from the profile and appends a counter
// until it is free
func (v *Verifier) uniqueUsername(ctx context.Context, provider string, profile models.OAuthProfile) (string, error) {
	base := DeriveUsername(provider, profile)

	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		_, err := v.users.GetByUsername(ctx, candidate)
		if services.IsNotFoundError(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}

		suffix := fmt.Sprintf("%d", i+1)
		trimmed := base
		if len(trimmed)+len(suffix) > maxUsernameLength {
			trimmed = trimmed[:maxUsernameLength-len(suffix)]
		}
		candidate = trimmed + suffix
	}

	return "", services.NewDomainError(services.ErrorTypeConflict, "could not derive a free username", nil)
}

// DeriveUsername builds a username from the display name, then the email
// local part, keeping lowercase letters, digits and underscores
func DeriveUsername(provider string, profile models.OAuthProfile) string {
	for _, source := range []string{profile.DisplayName, localPart(profile.Email)} {
		if name := sanitizeUsername(source); len(name) >= 3 {
			return name
		}
	}
	return sanitizeUsername(provider) + "_user"
}

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return ""
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '_' || r == ' ' || r == '.' || r == '-':
			b.WriteByte('_')
		}
		if b.Len() >= maxUsernameLength {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
