package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jdores/selfserve-egressip/internal/domain"
	"github.com/jdores/selfserve-egressip/internal/gateway"
	"github.com/jdores/selfserve-egressip/internal/storage"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "config/config.yaml"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Gateway   GatewayConfig           `yaml:"gateway"`
	Locations []domain.EgressLocation `yaml:"locations"`
	Database  DatabaseConfig          `yaml:"database"`
	Redis     RedisConfig             `yaml:"redis"`
	Audit     AuditConfig             `yaml:"audit"`
	Lease     LeaseConfig             `yaml:"lease"`
	Identity  IdentityConfig          `yaml:"identity"`
	CORS      CORSConfig              `yaml:"cors"`
	Logging   LoggingConfig           `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GatewayConfig holds credentials and limits for the gateway lists API
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	AccountID      string `yaml:"account_id"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxPages       int    `yaml:"max_pages"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the per-request timeout.
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClientConfig converts to the gateway client's settings.
func (c GatewayConfig) ClientConfig() gateway.Config {
	return gateway.Config{
		BaseURL:    c.BaseURL,
		AccountID:  c.AccountID,
		APIToken:   c.APIToken,
		Timeout:    c.Timeout(),
		MaxPages:   c.MaxPages,
		MaxRetries: c.MaxRetries,
	}
}

// DatabaseConfig holds the audit store connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the lock backend. Empty URL falls back to PostgreSQL
// advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuditConfig holds retention and archive settings
type AuditConfig struct {
	RetentionDays          int    `yaml:"retention_days"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
	CleanupLockTTLSeconds  int    `yaml:"cleanup_lock_ttl_seconds"`
	ArchiveBucket          string `yaml:"archive_bucket"` // S3 export disabled if empty
	ArchiveRegion          string `yaml:"archive_region"`
	ArchivePrefix          string `yaml:"archive_prefix"`
	ArchiveProfile         string `yaml:"archive_profile"`
	ArchiveDir             string `yaml:"archive_dir"` // local export, used when no bucket is set
}

// ArchiveConfig converts to the archive backend settings.
func (c AuditConfig) ArchiveConfig() storage.Config {
	return storage.Config{
		Bucket:  c.ArchiveBucket,
		Region:  c.ArchiveRegion,
		Prefix:  c.ArchivePrefix,
		Profile: c.ArchiveProfile,
		Dir:     c.ArchiveDir,
	}
}

// Retention returns how long entries are kept.
func (c AuditConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// CleanupInterval returns the sweep period.
func (c AuditConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// CleanupLockTTL returns how long a sweeper may hold the cleanup lock.
func (c AuditConfig) CleanupLockTTL() time.Duration {
	return time.Duration(c.CleanupLockTTLSeconds) * time.Second
}

// LeaseConfig controls the optional per-identity transition lease
type LeaseConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// TTL returns the lease expiry.
func (c LeaseConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// IdentityConfig names the trusted header carrying the caller identity
type IdentityConfig struct {
	Header string `yaml:"header"`
}

// CORSConfig lists browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether email addresses are masked. Defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// EgressLocations returns the configured locations as an immutable ordered set.
func (c *Config) EgressLocations() domain.Locations {
	return domain.NewLocations(c.Locations)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = gateway.DefaultBaseURL
	}
	if cfg.Gateway.TimeoutSeconds == 0 {
		cfg.Gateway.TimeoutSeconds = 30
	}
	if cfg.Gateway.MaxPages == 0 {
		cfg.Gateway.MaxPages = gateway.DefaultMaxPages
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.CleanupIntervalMinutes == 0 {
		cfg.Audit.CleanupIntervalMinutes = 24 * 60
	}
	if cfg.Audit.CleanupLockTTLSeconds == 0 {
		cfg.Audit.CleanupLockTTLSeconds = 900
	}
	if cfg.Audit.ArchiveRegion == "" {
		cfg.Audit.ArchiveRegion = "us-east-1"
	}
	if cfg.Audit.ArchivePrefix == "" {
		cfg.Audit.ArchivePrefix = "audit-archive"
	}
	if cfg.Lease.TTLSeconds == 0 {
		cfg.Lease.TTLSeconds = 15
	}
	if cfg.Identity.Header == "" {
		cfg.Identity.Header = "Cf-Access-Jwt-Assertion"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars.
// A missing config file is not an error: every required setting can come
// from the environment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("CF_ACCOUNT_ID"); v != "" {
		cfg.Gateway.AccountID = v
	}
	if v := os.Getenv("CF_API_TOKEN"); v != "" {
		cfg.Gateway.APIToken = v
	}
	if v := os.Getenv("CF_API_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("EGRESS_LOCATIONS"); v != "" {
		var locs []domain.EgressLocation
		if err := json.Unmarshal([]byte(v), &locs); err != nil {
			return nil, &domain.ConfigError{Setting: "EGRESS_LOCATIONS", Err: fmt.Errorf("invalid JSON: %w", err)}
		}
		cfg.Locations = locs
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, &domain.ConfigError{Setting: "SERVER_PORT", Err: err}
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// ResolvePath returns CONFIG_PATH or DefaultPath.
func ResolvePath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Validate checks the settings the server needs. It returns the first
// problem as a *domain.ConfigError.
func (c *Config) Validate() error {
	if len(c.Locations) == 0 {
		return &domain.ConfigError{Setting: "locations", Err: errors.New("at least one egress location is required")}
	}
	seen := make(map[string]struct{}, len(c.Locations))
	for i, loc := range c.Locations {
		if strings.TrimSpace(loc.ID) == "" {
			return &domain.ConfigError{Setting: fmt.Sprintf("locations[%d].id", i), Err: errors.New("must not be empty")}
		}
		if strings.TrimSpace(loc.Name) == "" {
			return &domain.ConfigError{Setting: fmt.Sprintf("locations[%d].name", i), Err: errors.New("must not be empty")}
		}
		if _, dup := seen[loc.ID]; dup {
			return &domain.ConfigError{Setting: fmt.Sprintf("locations[%d].id", i), Err: fmt.Errorf("duplicate id %q", loc.ID)}
		}
		seen[loc.ID] = struct{}{}
	}
	if c.Gateway.AccountID == "" {
		return &domain.ConfigError{Setting: "gateway.account_id", Err: errors.New("is required")}
	}
	if c.Gateway.APIToken == "" {
		return &domain.ConfigError{Setting: "gateway.api_token", Err: errors.New("is required")}
	}
	if c.Gateway.MaxPages < 1 {
		return &domain.ConfigError{Setting: "gateway.max_pages", Err: errors.New("must be at least 1")}
	}
	if c.Gateway.MaxRetries < 0 {
		return &domain.ConfigError{Setting: "gateway.max_retries", Err: errors.New("must not be negative")}
	}
	return c.ValidateStore()
}

// ValidateStore checks only the audit store settings. The retention worker
// needs nothing else.
func (c *Config) ValidateStore() error {
	if c.Database.URL == "" {
		return &domain.ConfigError{Setting: "database.url", Err: errors.New("is required")}
	}
	if c.Audit.RetentionDays < 1 {
		return &domain.ConfigError{Setting: "audit.retention_days", Err: errors.New("must be at least 1")}
	}
	return nil
}
