// Package config provides configuration management for the cart API server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultAuthMode        = "none"
	DefaultStoreDriver     = "memory"
	DefaultCORSOrigins     = "*"
	DefaultEventBuffer     = 16
)

// Environment variable names.
const (
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvCORSOrigins     = "APP_CORS_ORIGINS"
	EnvStoreDriver     = "APP_STORE_DRIVER"
	EnvDatabaseDSN     = "APP_DATABASE_DSN"
	EnvFixturesPath    = "APP_FIXTURES_PATH"
	EnvEventBuffer     = "APP_EVENT_BUFFER"
	EnvAuthMode        = "APP_AUTH_MODE"
	EnvBasicAuthUsers  = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys         = "APP_API_KEYS"   //nolint:gosec // env var name, not a credential
	EnvJWTSecret       = "APP_JWT_SECRET" //nolint:gosec // env var name, not a credential
	EnvJWTIssuer       = "APP_JWT_ISSUER"
	EnvJWTAudience     = "APP_JWT_AUDIENCE"
)

// Store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverMySQL  = "mysql"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	CORSOrigins     []string

	// Storage settings.
	StoreDriver  string
	DatabaseDSN  string
	FixturesPath string
	EventBuffer  int

	// Authentication mode: none, basic, apikey, jwt, multi.
	AuthMode string

	// Basic auth settings (format: "user1:bcrypt_hash,user2:bcrypt_hash").
	BasicAuthUsers string

	// API key settings (format: "key1:userID1,key2:userID2").
	APIKeys string

	// JWT settings. Tokens are HS256-signed with JWTSecret.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidCORSOrigins     = errors.New("at least one CORS origin must be set")
	ErrInvalidStoreDriver     = errors.New("store driver must be one of: memory, mysql")
	ErrInvalidDatabaseDSN     = errors.New("database DSN must be set when store driver is mysql")
	ErrInvalidEventBuffer     = errors.New("event buffer must be positive")
	ErrInvalidAuthMode        = errors.New(
		"auth mode must be one of: none, basic, apikey, jwt, multi",
	)
	ErrInvalidBasicAuthConfig = errors.New(
		"basic auth users must be set when auth mode is basic",
	)
	ErrInvalidAPIKeyConfig = errors.New(
		"API keys must be set when auth mode is apikey",
	)
	ErrInvalidJWTConfig = errors.New(
		"JWT secret must be set when auth mode is jwt",
	)
	ErrInvalidMultiAuthConfig = errors.New(
		"at least one auth config must be provided when auth mode is multi",
	)
)

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		CORSOrigins:     splitList(DefaultCORSOrigins),
		StoreDriver:     DefaultStoreDriver,
		EventBuffer:     DefaultEventBuffer,
		AuthMode:        DefaultAuthMode,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadStoreEnv(); err != nil {
		return err
	}

	c.loadAuthEnv()

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val, ok := os.LookupEnv(EnvCORSOrigins); ok {
		c.CORSOrigins = splitList(val)
	}

	return nil
}

// loadStoreEnv loads storage-related environment variables.
func (c *Config) loadStoreEnv() error {
	if val := os.Getenv(EnvStoreDriver); val != "" {
		c.StoreDriver = val
	}

	if val := os.Getenv(EnvDatabaseDSN); val != "" {
		c.DatabaseDSN = val
	}

	if val := os.Getenv(EnvFixturesPath); val != "" {
		c.FixturesPath = val
	}

	if val := os.Getenv(EnvEventBuffer); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvEventBuffer, err)
		}
		c.EventBuffer = size
	}

	return nil
}

// loadAuthEnv loads authentication environment variables.
func (c *Config) loadAuthEnv() {
	if val := os.Getenv(EnvAuthMode); val != "" {
		c.AuthMode = val
	}

	if val := os.Getenv(EnvBasicAuthUsers); val != "" {
		c.BasicAuthUsers = val
	}

	if val := os.Getenv(EnvAPIKeys); val != "" {
		c.APIKeys = val
	}

	if val := os.Getenv(EnvJWTSecret); val != "" {
		c.JWTSecret = val
	}

	if val := os.Getenv(EnvJWTIssuer); val != "" {
		c.JWTIssuer = val
	}

	if val := os.Getenv(EnvJWTAudience); val != "" {
		c.JWTAudience = val
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if len(c.CORSOrigins) == 0 {
		return ErrInvalidCORSOrigins
	}

	return nil
}

// validateStore validates storage-related configuration.
func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverMySQL:
		if c.DatabaseDSN == "" {
			return ErrInvalidDatabaseDSN
		}
	default:
		return ErrInvalidStoreDriver
	}

	if c.EventBuffer <= 0 {
		return ErrInvalidEventBuffer
	}

	return nil
}

// validateAuth validates authentication configuration.
func (c *Config) validateAuth() error {
	authMode := c.authModeOrDefault()

	validAuthModes := map[string]bool{
		"none":   true,
		"basic":  true,
		"apikey": true,
		"jwt":    true,
		"multi":  true,
	}
	if !validAuthModes[authMode] {
		return ErrInvalidAuthMode
	}

	switch authMode {
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "jwt":
		if c.JWTSecret == "" {
			return ErrInvalidJWTConfig
		}
	case "multi":
		if !c.hasAnyAuthConfig() {
			return ErrInvalidMultiAuthConfig
		}
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// hasAnyAuthConfig checks if at least one auth-related configuration is provided.
func (c *Config) hasAnyAuthConfig() bool {
	return c.BasicAuthUsers != "" ||
		c.APIKeys != "" ||
		c.JWTSecret != ""
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
