package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store holds per-caller counters. Increment must be atomic: it either
// starts a new window at now (when the stored one has elapsed) or bumps
// the current one, and returns the post-increment count with its window start.
type Store interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (count int, windowStart time.Time, err error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the quota applied to every caller
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// Result represents the outcome of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimitService enforces a fixed-window quota per caller key
type RateLimitService struct {
	store  Store
	config Config
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a RateLimitService
type Option func(*RateLimitService)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *RateLimitService) {
		s.now = now
	}
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(store Store, config Config, logger *zap.Logger, opts ...Option) *RateLimitService {
	s := &RateLimitService{
		store:  store,
		config: config,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow counts one request for key and reports whether it is within quota.
// The window resets by elapsed time, so a burst never locks a caller out
// beyond the end of its current window.
func (s *RateLimitService) Allow(ctx context.Context, key string) (*Result, error) {
	now := s.now()

	count, windowStart, err := s.store.Increment(ctx, key, now, s.config.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	resetAt := windowStart.Add(s.config.Window)
	result := &Result{
		Allowed:   count <= s.config.MaxRequests,
		Limit:     s.config.MaxRequests,
		Remaining: s.config.MaxRequests - count,
		ResetAt:   resetAt,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if !result.Allowed {
		result.RetryAfter = resetAt.Sub(now)
		s.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("count", count),
			zap.Time("reset_at", resetAt))
	}

	return result, nil
}

// Config returns the quota in force
func (s *RateLimitService) Config() Config {
	return s.config
}

// CleanupExpired removes counters whose window has fully elapsed
func (s *RateLimitService) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.Window)

	removed, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limit counters: %w", err)
	}

	s.logger.Debug("cleaned up rate limit counters",
		zap.Int64("removed", removed),
		zap.Time("cutoff_time", cutoff))

	return removed, nil
}

// StartCleanupWorker starts a background worker to periodically clean up old counters
func (s *RateLimitService) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("window", s.config.Window))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.logger.Error("failed to cleanup rate limit counters", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}
