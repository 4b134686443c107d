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
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Port      string          `yaml:"port"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	Auth      AuthConfig      `yaml:"auth"`
	Digest    DigestConfig    `yaml:"digest"`
	Mail      MailConfig      `yaml:"mail"`
	Geocoder  GeocoderConfig  `yaml:"geocoder"`
	Redis     RedisConfig     `yaml:"redis"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	CORS      CORSConfig      `yaml:"cors"`
	Timezone  string          `yaml:"timezone"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// FirebaseConfig points at the service account used for session verification
type FirebaseConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
}

// AuthConfig drives the access gate
type AuthConfig struct {
	ProtectedPrefixes   []string `yaml:"protected_prefixes"`
	AdminPrefixes       []string `yaml:"admin_prefixes"`
	AdminEmails         []string `yaml:"admin_emails"`
	LoginPath           string   `yaml:"login_path"`
	SignedInHome        string   `yaml:"signed_in_home"`
	SessionCookie       string   `yaml:"session_cookie"`
	IDTokenCookie       string   `yaml:"id_token_cookie"`
	SessionTTLHours     int      `yaml:"session_ttl_hours"`
	RefreshAfterMinutes int      `yaml:"refresh_after_minutes"`
	SecureCookies       bool     `yaml:"secure_cookies"`
}

// DigestConfig contains saved-search digest settings
type DigestConfig struct {
	CronSecret  string `yaml:"cron_secret"`
	FromEmail   string `yaml:"from_email"`
	AppBaseURL  string `yaml:"app_base_url"`
	MaxItems    int    `yaml:"max_items"`
	CronEnabled bool   `yaml:"cron_enabled"`
	Cron        string `yaml:"cron"`
}

// MailConfig contains email provider settings
type MailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
}

// GeocoderConfig contains forward geocoding settings
type GeocoderConfig struct {
	URL               string  `yaml:"url"`
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	CacheTTLHours     int     `yaml:"cache_ttl_hours"`
	FailureThreshold  int     `yaml:"failure_threshold"`
	CooldownSeconds   int     `yaml:"cooldown_seconds"`
	WorkerEnabled     bool    `yaml:"worker_enabled"`
	WorkerPollSeconds int     `yaml:"worker_poll_seconds"`
	WorkerBatchSize   int     `yaml:"worker_batch_size"`
}

// RedisConfig contains cache settings
type RedisConfig struct {
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	CatalogTTLSeconds int    `yaml:"catalog_ttl_seconds"`
}

// CleanupConfig contains purge settings for soft-deleted projects
type CleanupConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Cron             string `yaml:"cron"`
	RetentionDays    int    `yaml:"retention_days"`
	MaxDeletionCount int    `yaml:"max_deletion_count"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // text or json
	LogRequests bool   `yaml:"log_requests"`
}

// CORSConfig contains allowed browser origins
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Port: "8084",
		Database: DatabaseConfig{
			Type: "mysql",
		},
		Auth: AuthConfig{
			ProtectedPrefixes:   []string{"/dashboard", "/projects"},
			AdminPrefixes:       []string{"/dashboard"},
			LoginPath:           "/login",
			SignedInHome:        "/projects",
			SessionCookie:       "__session",
			IDTokenCookie:       "__id_token",
			SessionTTLHours:     24 * 5,
			RefreshAfterMinutes: 60,
			SecureCookies:       true,
		},
		Digest: DigestConfig{
			MaxItems:    30,
			CronEnabled: false,
			Cron:        "0 6 * * *",
		},
		Geocoder: GeocoderConfig{
			URL:               "https://nominatim.openstreetmap.org",
			UserAgent:         "tyomaat-portal/1.0",
			RequestsPerSecond: 1,
			TimeoutSeconds:    10,
			CacheTTLHours:     24 * 30,
			FailureThreshold:  5,
			CooldownSeconds:   300,
			WorkerEnabled:     true,
			WorkerPollSeconds: 30,
			WorkerBatchSize:   5,
		},
		Redis: RedisConfig{
			CatalogTTLSeconds: 60,
		},
		Cleanup: CleanupConfig{
			Enabled:          true,
			Cron:             "30 3 * * *",
			RetentionDays:    30,
			MaxDeletionCount: 500,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			RequestsPerHour:   3000,
			RequestsPerDay:    20000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			LogRequests: true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:3000"},
		},
		Timezone: "Europe/Helsinki",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadDotEnv loads .env files into the process environment.
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with environment variables
func (c *Config) ApplyEnv() {
	c.Port = getEnvOr("PORT", c.Port)
	c.Database.Type = getEnvOr("DB_TYPE", c.Database.Type)

	if c.Database.Type == "postgres" {
		pg := &c.Database.Postgres
		pg.Host = getEnvOr("DB_HOST", pg.Host)
		pg.Port = getEnvInt("DB_PORT", pg.Port)
		pg.User = getEnvOr("DB_USER", pg.User)
		pg.Password = getEnvOr("DB_PASSWORD", pg.Password)
		pg.Database = getEnvOr("DB_NAME", pg.Database)
	} else {
		my := &c.Database.MySQL
		my.Host = getEnvOr("DB_HOST", my.Host)
		my.Port = getEnvInt("DB_PORT", my.Port)
		my.User = getEnvOr("DB_USER", my.User)
		my.Password = getEnvOr("DB_PASSWORD", my.Password)
		my.Database = getEnvOr("DB_NAME", my.Database)
	}

	c.Firebase.CredentialsPath = getEnvOr("FIREBASE_CREDENTIALS_PATH", c.Firebase.CredentialsPath)
	c.Mail.ResendAPIKey = getEnvOr("RESEND_API_KEY", c.Mail.ResendAPIKey)
	c.Digest.FromEmail = getEnvOr("DIGEST_FROM_EMAIL", c.Digest.FromEmail)
	c.Digest.AppBaseURL = getEnvOr("APP_BASE_URL", c.Digest.AppBaseURL)
	c.Digest.CronSecret = getEnvOr("CRON_SECRET", c.Digest.CronSecret)
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		c.Auth.AdminEmails = splitList(v)
	}
	c.Search.Meilisearch.Host = getEnvOr("MEILISEARCH_HOST", c.Search.Meilisearch.Host)
	c.Search.Meilisearch.APIKey = getEnvOr("MEILISEARCH_KEY", c.Search.Meilisearch.APIKey)
	c.Redis.Addr = getEnvOr("REDIS_ADDR", c.Redis.Addr)
	c.Geocoder.URL = getEnvOr("GEOCODER_URL", c.Geocoder.URL)
	c.Geocoder.UserAgent = getEnvOr("GEOCODER_USER_AGENT", c.Geocoder.UserAgent)
	c.Logging.Level = getEnvOr("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOr("LOG_FORMAT", c.Logging.Format)
}

// MissingDigestSettings lists the digest prerequisites that are not configured.
// Database availability is checked by the caller.
func (c *Config) MissingDigestSettings() []string {
	var missing []string
	if c.Digest.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if c.Mail.ResendAPIKey == "" {
		missing = append(missing, "RESEND_API_KEY")
	}
	if c.Digest.FromEmail == "" {
		missing = append(missing, "DIGEST_FROM_EMAIL")
	}
	return missing
}

// SessionTTL returns the session cookie lifetime
func (c *AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// RefreshAfter returns the session age after which the cookie is re-minted
func (c *AuthConfig) RefreshAfter() time.Duration {
	return time.Duration(c.RefreshAfterMinutes) * time.Minute
}

// GetTimeout returns the geocoder request timeout
func (c *GeocoderConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetCacheTTL returns how long a geocode result is cached
func (c *GeocoderConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// GetCooldown returns how long the circuit stays open after tripping
func (c *GeocoderConfig) GetCooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// GetPollInterval returns the geocode queue poll interval
func (c *GeocoderConfig) GetPollInterval() time.Duration {
	return time.Duration(c.WorkerPollSeconds) * time.Second
}

// GetCatalogTTL returns how long the public catalog stays cached
func (c *RedisConfig) GetCatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

func getEnvOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
