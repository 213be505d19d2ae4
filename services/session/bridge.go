package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"go.uber.org/zap"
)

const (
	keyBytes   = 32
	nonceBytes = 16
)

// IdentityVerifier resolves a provider account to a local user
type IdentityVerifier interface {
	VerifyOAuthIdentity(ctx context.Context, provider, providerUserID string, profile models.OAuthProfile) (*models.User, error)
}

// Bridge carries a third-party sign-in across the redirect round trip.
// Begin records a pending handshake under a random key, and Complete consumes it
// exactly once when the provider calls back.
type Bridge struct {
	store    Store
	verifier IdentityVerifier
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Bridge
type Option func(*Bridge)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.now = now
	}
}

// NewBridge creates a session bridge
func NewBridge(store Store, verifier IdentityVerifier, ttl time.Duration, logger *zap.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		store:    store,
		verifier: verifier,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BeginOption configures a single handshake
type BeginOption func(*models.Handshake)

// WithLinkUser binds the handshake to an already signed-in user, so the
// provider account is linked to it instead of provisioning a new one
func WithLinkUser(userID int64) BeginOption {
	return func(h *models.Handshake) {
		h.LinkUserID = &userID
	}
}

// Begin starts a sign-in with provider. The returned key is the only
// correlation between the redirect and the callback.
func (b *Bridge) Begin(ctx context.Context, provider string, opts ...BeginOption) (*models.Handshake, error) {
	key, err := randomToken(keyBytes)
	if err != nil {
		return nil, services.WrapInternal("failed to generate session key", err)
	}
	nonce, err := randomToken(nonceBytes)
	if err != nil {
		return nil, services.WrapInternal("failed to generate nonce", err)
	}

	now := b.now()
	handshake := &models.Handshake{
		Key:       key,
		Provider:  provider,
		Nonce:     nonce,
		CreatedAt: now,
		ExpiresAt: now.Add(b.ttl),
	}
	for _, opt := range opts {
		opt(handshake)
	}

	if err := b.store.Save(ctx, handshake); err != nil {
		return nil, services.WrapInternal("failed to save handshake", err)
	}

	b.logger.Debug("oauth handshake started",
		zap.String("provider", provider),
		zap.Time("expires_at", handshake.ExpiresAt))
	return handshake, nil
}

// Complete consumes the handshake for key and resolves the provider result
// to a local user. An absent, already used or expired key, or a result from a
// different provider, returns services.ErrUnknownSession.
func (b *Bridge) Complete(ctx context.Context, key string, result models.ProviderResult) (*models.User, error) {
	if key == "" {
		return nil, services.ErrUnknownSession
	}

	handshake, err := b.store.Consume(ctx, key)
	if err != nil {
		if services.IsUnknownSessionError(err) {
			return nil, services.ErrUnknownSession
		}
		return nil, services.WrapInternal("failed to consume handshake", err)
	}

	if handshake.IsExpired(b.now()) {
		b.logger.Debug("oauth handshake expired", zap.String("provider", handshake.Provider))
		return nil, services.ErrUnknownSession
	}
	if handshake.Provider != result.Provider {
		b.logger.Warn("oauth callback provider does not match handshake",
			zap.String("expected", handshake.Provider),
			zap.String("got", result.Provider))
		return nil, services.ErrUnknownSession
	}
	if (result.NonceExpected || result.Nonce != "") && subtle.ConstantTimeCompare([]byte(result.Nonce), []byte(handshake.Nonce)) != 1 {
		b.logger.Warn("oauth id token nonce does not match handshake", zap.String("provider", handshake.Provider))
		return nil, services.ErrUnknownSession
	}

	profile := result.Profile
	profile.LinkUserID = handshake.LinkUserID

	return b.verifier.VerifyOAuthIdentity(ctx, handshake.Provider, profile.ProviderUserID, profile)
}

// Reap removes handshakes whose deadline has passed
func (b *Bridge) Reap(ctx context.Context) (int64, error) {
	removed, err := b.store.DeleteExpired(ctx, b.now())
	if err != nil {
		return 0, fmt.Errorf("failed to reap handshakes: %w", err)
	}

	if removed > 0 {
		b.logger.Debug("reaped expired handshakes", zap.Int64("removed", removed))
	}
	return removed, nil
}

// StartReaper runs Reap every interval until ctx is cancelled
func (b *Bridge) StartReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.Info("started oauth handshake reaper", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if _, err := b.Reap(ctx); err != nil {
				b.logger.Error("failed to reap handshakes", zap.Error(err))
			}
		case <-ctx.Done():
			b.logger.Info("stopping oauth handshake reaper")
			return
		}
	}
}

// TTL returns how long a handshake stays valid
func (b *Bridge) TTL() time.Duration {
	return b.ttl
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
