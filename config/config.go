package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// minSecretLength is the minimum byte length for signing secrets in production
	minSecretLength = 32

	devJWTSecret     = "dev-only-jwt-secret-change-me-please-0001"
	devSessionSecret = "dev-only-session-secret-change-me-please-01"
)

// Config represents the complete application configuration.
// It is built once at startup and never mutated afterwards.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Session       SessionConfig
	CORS          CORSConfig
	RateLimit     RateLimitConfig
	Body          BodyConfig
	Cookie        CookieConfig
	OAuth         OAuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string // IPs or CIDRs whose forwarding headers name the client
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

// SessionConfig holds OAuth handshake state configuration
type SessionConfig struct {
	Secret       string        // HMAC key binding the handshake cookie to its correlation key
	HandshakeTTL time.Duration // A sign-in flow must complete within this window
	ReapInterval time.Duration
	Store        string // memory or postgres
	StoreSize    int    // Max pending handshakes kept by the memory store
}

// CORSConfig holds the environment-dependent origin allow-lists
type CORSConfig struct {
	DevOrigins  []string
	ProdOrigins []string
}

// RateLimitConfig holds per-caller request quota configuration
type RateLimitConfig struct {
	Window          time.Duration
	MaxRequests     int
	Store           string // memory or postgres
	CleanupInterval time.Duration
}

// BodyConfig holds request payload limits
type BodyConfig struct {
	MaxBytes int64
}

// CookieConfig holds auth cookie attributes
type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

// OAuthConfig holds third-party sign-in provider configuration
type OAuthConfig struct {
	RedirectBaseURL string // Public base URL used to build provider callback URLs
	FrontEndURL     string // Post-login redirect target
	Google          OAuthProviderConfig
	Facebook        OAuthProviderConfig
}

// OAuthProviderConfig holds one provider's client credentials
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	Issuer       string // OIDC issuer; only used by OIDC-capable providers
}

// Enabled reports whether the provider has client credentials
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	env := getEnv("ENVIRONMENT", "development")
	production := env == "production" || env == "prod"

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", devDefault(production, devJWTSecret)),
			JWTIssuer: getEnv("JWT_ISSUER", "coinkrazy-gateway"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 7*24*time.Hour),
		},
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", devDefault(production, devSessionSecret)),
			HandshakeTTL: getEnvAsDuration("SESSION_HANDSHAKE_TTL", 10*time.Minute),
			ReapInterval: getEnvAsDuration("SESSION_REAP_INTERVAL", time.Minute),
			Store:        getEnv("SESSION_STORE", "memory"),
			StoreSize:    getEnvAsInt("SESSION_STORE_SIZE", 10000),
		},
		CORS: CORSConfig{
			DevOrigins:  getEnvAsList("CORS_DEV_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:5173"}),
			ProdOrigins: getEnvAsList("CORS_PROD_ORIGINS", []string{}),
		},
		RateLimit: RateLimitConfig{
			Window:          getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxRequests:     getEnvAsInt("RATE_LIMIT_MAX", 1000),
			Store:           getEnv("RATE_LIMIT_STORE", "memory"),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Body: BodyConfig{
			MaxBytes: getEnvAsInt64("BODY_LIMIT_BYTES", 10<<20),
		},
		Cookie: CookieConfig{
			Secure: getEnvAsBool("COOKIE_SECURE", production),
			MaxAge: getEnvAsDuration("COOKIE_MAX_AGE", 7*24*time.Hour),
		},
		OAuth: OAuthConfig{
			RedirectBaseURL: getEnv("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080"),
			FrontEndURL:     getEnv("FRONT_END_URL", "http://localhost:5173"),
			Google: OAuthProviderConfig{
				ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
				Issuer:       getEnv("GOOGLE_ISSUER", "https://accounts.google.com"),
			},
			Facebook: OAuthProviderConfig{
				ClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
				ClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.Session.HandshakeTTL <= 0 {
		return fmt.Errorf("SESSION_HANDSHAKE_TTL must be positive")
	}
	if c.Session.ReapInterval <= 0 {
		return fmt.Errorf("SESSION_REAP_INTERVAL must be positive")
	}
	if c.Session.Store == "memory" && c.Session.StoreSize <= 0 {
		return fmt.Errorf("SESSION_STORE_SIZE must be positive")
	}

	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < minSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minSecretLength)
		}
		if len(c.Session.Secret) < minSecretLength {
			return fmt.Errorf("SESSION_SECRET must be at least %d bytes in production", minSecretLength)
		}
		if len(c.CORS.ProdOrigins) == 0 {
			return fmt.Errorf("CORS_PROD_ORIGINS is required in production")
		}
	}

	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.CleanupInterval <= 0 {
		return fmt.Errorf("RATE_LIMIT_CLEANUP_INTERVAL must be positive")
	}
	if c.Body.MaxBytes <= 0 {
		return fmt.Errorf("BODY_LIMIT_BYTES must be positive")
	}

	for name, store := range map[string]string{"SESSION_STORE": c.Session.Store, "RATE_LIMIT_STORE": c.RateLimit.Store} {
		if store != "memory" && store != "postgres" {
			return fmt.Errorf("%s must be memory or postgres, got %q", name, store)
		}
	}

	if _, err := c.Server.TrustedProxyNets(); err != nil {
		return err
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// AllowedOrigins returns the cross-origin allow-list for the active environment
func (c *Config) AllowedOrigins() []string {
	if c.IsProduction() {
		return c.CORS.ProdOrigins
	}
	return c.CORS.DevOrigins
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TrustedProxyNets parses TrustedProxies. A bare IP becomes a single-host network.
func (c *ServerConfig) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "dev_password"),
		Database:        getEnv("DB_NAME", "coinkrazy"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

// devDefault returns the development fallback unless running in production
func devDefault(production bool, value string) string {
	if production {
		return ""
	}
	return value
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
