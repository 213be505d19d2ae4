package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/auth"
	"github.com/coinkrazygaming/coinkrazy2-sub002/config"
	"github.com/coinkrazygaming/coinkrazy2-sub002/handlers"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories/postgres"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/audit"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/credentials"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/ratelimit"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/session"
	"github.com/coinkrazygaming/coinkrazy2-sub002/tokens"
	"go.uber.org/zap"
)

const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Peers allowed to name the client through forwarding headers
	TrustedProxies []*net.IPNet

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users      repositories.UserRepository
	Identities repositories.IdentityRepository
	AuditLogs  repositories.AuditRepository
	TxManager  repositories.TransactionManager

	// Services
	Tokens      *tokens.Codec
	Credentials *credentials.Verifier
	RateLimiter *ratelimit.RateLimitService
	Bridge      *session.Bridge
	Audit       *audit.AuditService
	Providers   *auth.Registry

	// Handlers
	AuthHandler   *auth.Handler
	UserHandler   *handlers.UserHandler
	HealthHandler *handlers.HealthHandler
	Errors        *handlers.ErrorMapper

	stopWorkers context.CancelFunc
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithDB(ctx, cfg, logger, factory.GetDB())
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithDB wires up all application dependencies over an open pool
func NewDependenciesWithDB(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *postgres.DB) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		DB:          db,
		Logger:      logger,
		RepoFactory: postgres.NewRepositoryFactoryWithDB(db, logger),
	}

	trusted, err := cfg.Server.TrustedProxyNets()
	if err != nil {
		return nil, err
	}
	deps.TrustedProxies = trusted

	deps.initRepositories()
	deps.initServices()

	if err := deps.initProviders(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Identities = repos.Identities
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() {
	cfg := d.Config

	d.Tokens = tokens.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	d.Credentials = credentials.NewVerifier(d.Users, d.Identities, d.TxManager, d.Logger)

	var counters ratelimit.Store
	if cfg.RateLimit.Store == "postgres" {
		counters = ratelimit.NewPostgresStore(d.DB.DB)
	} else {
		counters = ratelimit.NewMemoryStore()
	}
	d.RateLimiter = ratelimit.NewRateLimitService(counters, ratelimit.Config{
		Window:      cfg.RateLimit.Window,
		MaxRequests: cfg.RateLimit.MaxRequests,
	}, d.Logger)

	var handshakes session.Store
	if cfg.Session.Store == "postgres" {
		handshakes = session.NewPostgresStore(d.DB.DB)
	} else {
		handshakes = session.NewMemoryStore(cfg.Session.StoreSize, cfg.Session.HandshakeTTL, d.Logger)
	}
	d.Bridge = session.NewBridge(handshakes, d.Credentials, cfg.Session.HandshakeTTL, d.Logger)

	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger, audit.DefaultConfig())

	d.Logger.Info("services initialized",
		zap.String("rate_limit_store", cfg.RateLimit.Store),
		zap.String("session_store", cfg.Session.Store))
}

func (d *Dependencies) initProviders(ctx context.Context) error {
	registry, err := auth.BuildProviders(ctx, d.Config, d.Logger)
	if err != nil {
		return err
	}
	d.Providers = registry
	return nil
}

func (d *Dependencies) initHandlers() {
	cfg := d.Config

	d.AuthHandler = auth.NewHandler(cfg, d.Credentials, d.Bridge, d.Providers, d.Tokens, d.Audit, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.Users, d.Audit, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, cfg.Environment, d.Logger).WithAudit(d.Audit)
	d.Errors = handlers.NewErrorMapper(cfg.IsProduction(), d.Logger)
}

// Start launches the background workers: audit writers, the rate-limit
// counter cleanup and the handshake reaper
func (d *Dependencies) Start(ctx context.Context) error {
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	d.stopWorkers = cancel

	go d.RateLimiter.StartCleanupWorker(workerCtx, d.Config.RateLimit.CleanupInterval)
	go d.Bridge.StartReaper(workerCtx, d.Config.Session.ReapInterval)

	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWorkers != nil {
		d.stopWorkers()
		if err := d.Audit.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
