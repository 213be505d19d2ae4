package config

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	prodJWTSecret     = strings.Repeat("j", 32)
	prodSessionSecret = strings.Repeat("s", 32)
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.NotEmpty(t, cfg.Auth.JWTSecret)
				assert.NotEmpty(t, cfg.Session.Secret)
				assert.Equal(t, 10*time.Minute, cfg.Session.HandshakeTTL)
				assert.Equal(t, "memory", cfg.Session.Store)
				assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
				assert.Equal(t, 1000, cfg.RateLimit.MaxRequests)
				assert.Equal(t, int64(10<<20), cfg.Body.MaxBytes)
				assert.False(t, cfg.Cookie.Secure)
				assert.Equal(t, 7*24*time.Hour, cfg.Cookie.MaxAge)
				assert.Contains(t, cfg.AllowedOrigins(), "http://localhost:5173")
			},
		},
		{
			name: "production configuration",
			envVars: map[string]string{
				"ENVIRONMENT":       "production",
				"DATABASE_URL":      "postgres://u:p@prod-db.example.com:5433/gateway",
				"JWT_SECRET":        prodJWTSecret,
				"SESSION_SECRET":    prodSessionSecret,
				"CORS_PROD_ORIGINS": "https://coinkrazy.com, https://www.coinkrazy.com",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.True(t, cfg.Cookie.Secure)
				assert.Equal(t, []string{"https://coinkrazy.com", "https://www.coinkrazy.com"}, cfg.AllowedOrigins())
				assert.Equal(t, "host=prod-db.example.com port=5433 database=gateway", cfg.Database.LogString())
			},
		},
		{
			name: "custom limits",
			envVars: map[string]string{
				"RATE_LIMIT_WINDOW": "1m",
				"RATE_LIMIT_MAX":    "5",
				"RATE_LIMIT_STORE":  "postgres",
				"BODY_LIMIT_BYTES":  "1024",
				"JWT_TTL":           "1h",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, time.Minute, cfg.RateLimit.Window)
				assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
				assert.Equal(t, "postgres", cfg.RateLimit.Store)
				assert.Equal(t, int64(1024), cfg.Body.MaxBytes)
				assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
			},
		},
		{
			name: "oauth providers",
			envVars: map[string]string{
				"GOOGLE_CLIENT_ID":     "google-id",
				"GOOGLE_CLIENT_SECRET": "google-secret",
				"FRONT_END_URL":        "http://localhost:3000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.OAuth.Google.Enabled())
				assert.False(t, cfg.OAuth.Facebook.Enabled())
				assert.Equal(t, "https://accounts.google.com", cfg.OAuth.Google.Issuer)
				assert.Equal(t, "http://localhost:3000", cfg.OAuth.FrontEndURL)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "production without secrets",
			envVars: map[string]string{
				"ENVIRONMENT":       "production",
				"CORS_PROD_ORIGINS": "https://coinkrazy.com",
			},
			wantErr: true,
		},
		{
			name: "production with short secret",
			envVars: map[string]string{
				"ENVIRONMENT":       "production",
				"JWT_SECRET":        "short",
				"SESSION_SECRET":    prodSessionSecret,
				"CORS_PROD_ORIGINS": "https://coinkrazy.com",
			},
			wantErr: true,
		},
		{
			name: "reap interval from env",
			envVars: map[string]string{
				"SESSION_REAP_INTERVAL":       "30s",
				"RATE_LIMIT_CLEANUP_INTERVAL": "2m",
				"TRUSTED_PROXIES":             "10.0.0.1, 172.16.0.0/12",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30*time.Second, cfg.Session.ReapInterval)
				assert.Equal(t, 2*time.Minute, cfg.RateLimit.CleanupInterval)
				assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.Server.TrustedProxies)
			},
		},
		{
			name: "non-positive reap interval",
			envVars: map[string]string{
				"SESSION_REAP_INTERVAL": "0s",
			},
			wantErr: true,
		},
		{
			name: "negative cleanup interval",
			envVars: map[string]string{
				"RATE_LIMIT_CLEANUP_INTERVAL": "-1m",
			},
			wantErr: true,
		},
		{
			name: "unknown session store",
			envVars: map[string]string{
				"SESSION_STORE": "redis",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "user",
			Database: "db",
		},
		Auth:      AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour},
		Session:   SessionConfig{Secret: "secret", HandshakeTTL: time.Minute, ReapInterval: time.Minute, Store: "memory", StoreSize: 100},
		RateLimit: RateLimitConfig{Window: time.Minute, MaxRequests: 10, Store: "memory", CleanupInterval: time.Minute},
		Body:      BodyConfig{MaxBytes: 1024},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid development config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: true,
			errMsg:  "JWT_SECRET is required",
		},
		{
			name: "production requires long secrets",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.CORS.ProdOrigins = []string{"https://coinkrazy.com"}
			},
			wantErr: true,
			errMsg:  "at least 32 bytes",
		},
		{
			name: "production requires origins",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Auth.JWTSecret = prodJWTSecret
				c.Session.Secret = prodSessionSecret
			},
			wantErr: true,
			errMsg:  "CORS_PROD_ORIGINS",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit.MaxRequests = 0 },
			wantErr: true,
			errMsg:  "RATE_LIMIT_MAX",
		},
		{
			name:    "zero reap interval",
			mutate:  func(c *Config) { c.Session.ReapInterval = 0 },
			wantErr: true,
			errMsg:  "SESSION_REAP_INTERVAL",
		},
		{
			name:    "negative reap interval",
			mutate:  func(c *Config) { c.Session.ReapInterval = -time.Second },
			wantErr: true,
			errMsg:  "SESSION_REAP_INTERVAL",
		},
		{
			name:    "zero cleanup interval",
			mutate:  func(c *Config) { c.RateLimit.CleanupInterval = 0 },
			wantErr: true,
			errMsg:  "RATE_LIMIT_CLEANUP_INTERVAL",
		},
		{
			name:    "negative cleanup interval",
			mutate:  func(c *Config) { c.RateLimit.CleanupInterval = -time.Minute },
			wantErr: true,
			errMsg:  "RATE_LIMIT_CLEANUP_INTERVAL",
		},
		{
			name:    "zero memory store size",
			mutate:  func(c *Config) { c.Session.StoreSize = 0 },
			wantErr: true,
			errMsg:  "SESSION_STORE_SIZE",
		},
		{
			name: "postgres store ignores size",
			mutate: func(c *Config) {
				c.Session.Store = "postgres"
				c.Session.StoreSize = 0
			},
			wantErr: false,
		},
		{
			name:    "trusted proxies",
			mutate:  func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.7", "::1"} },
			wantErr: false,
		},
		{
			name:    "malformed trusted proxy",
			mutate:  func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "proxy.local"} },
			wantErr: true,
			errMsg:  "TRUSTED_PROXIES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"dev", "dev", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_AllowedOrigins(t *testing.T) {
	cfg := &Config{CORS: CORSConfig{DevOrigins: []string{"http://dev"}, ProdOrigins: []string{"https://prod"}}}

	cfg.Environment = "development"
	assert.Equal(t, []string{"http://dev"}, cfg.AllowedOrigins())

	cfg.Environment = "production"
	assert.Equal(t, []string{"https://prod"}, cfg.AllowedOrigins())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())

	cfg.ConnectionString = "postgres://u:p@db/x"
	assert.Equal(t, "postgres://u:p@db/x", cfg.DSN())
}

func TestServerConfig_TrustedProxyNets(t *testing.T) {
	cfg := ServerConfig{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.7", "2001:db8::1"}}

	nets, err := cfg.TrustedProxyNets()
	require.NoError(t, err)
	require.Len(t, nets, 3)

	assert.True(t, nets[0].Contains(net.ParseIP("10.20.30.40")))
	assert.True(t, nets[1].Contains(net.ParseIP("192.168.1.7")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.168.1.8")))
	assert.True(t, nets[2].Contains(net.ParseIP("2001:db8::1")))
	assert.False(t, nets[2].Contains(net.ParseIP("2001:db8::2")))

	empty := ServerConfig{}
	nets, err = empty.TrustedProxyNets()
	require.NoError(t, err)
	assert.Empty(t, nets)
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "TEST_INT", "42", 10, 42},
		{"empty value", "TEST_INT", "", 10, 10},
		{"invalid int", "TEST_INT", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsInt(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "TEST_BOOL", "true", false, true},
		{"false", "TEST_BOOL", "false", true, false},
		{"empty value", "TEST_BOOL", "", true, true},
		{"invalid bool", "TEST_BOOL", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsBool(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "30s", 10 * time.Second, 30 * time.Second},
		{"empty value", "", 10 * time.Second, 10 * time.Second},
		{"invalid duration", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_DURATION", tt.value)
			}
			got := getEnvAsDuration("TEST_DURATION", tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"single", "a", []string{"a"}},
		{"trims and drops blanks", " a, ,b ,", []string{"a", "b"}},
		{"empty uses default", "", []string{"default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_LIST", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsList("TEST_LIST", []string{"default"}))
		})
	}
}
