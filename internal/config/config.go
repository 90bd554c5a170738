package config

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/macjediwizard/syncbridge/internal/broker"
	"github.com/macjediwizard/syncbridge/internal/notify"
	"github.com/macjediwizard/syncbridge/internal/validator"
)

var (
	ErrMissingConfig     = errors.New("missing required configuration")
	ErrInvalidConfig     = errors.New("invalid configuration value")
	ErrEncryptionKeySize = errors.New("encryption key must be exactly 32 bytes (64 hex characters)")
	ErrSessionSecretSize = errors.New("session secret must be at least 32 characters")
	ErrAPITokenSize      = errors.New("API token must be at least 32 characters")
	ErrValidationFailed  = errors.New("configuration validation failed")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	OIDC         OIDCConfig
	Security     SecurityConfig
	Database     DatabaseConfig
	Analytics    AnalyticsConfig
	RateLimiting RateLimitConfig
	Sync         SyncConfig
	Alerts       AlertsConfig
	Broker       BrokerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	BaseURL     string
	Environment Environment
}

// OIDCConfig holds OIDC authentication configuration.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AllowedDomains restricts admin login to these email domains.
	AllowedDomains []string
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	EncryptionKey []byte
	SessionSecret string
	// APIToken authenticates the command line client. Empty disables
	// token authentication.
	APIToken      string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// AnalyticsConfig holds analytics upload configuration.
type AnalyticsConfig struct {
	// BaseURL may contain a {region} placeholder.
	BaseURL   string
	Timeout   time.Duration
	BatchSize int
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// SyncConfig holds background sync configuration.
type SyncConfig struct {
	Interval      time.Duration
	RetentionDays int
}

// AlertsConfig holds failure alert configuration.
type AlertsConfig struct {
	WebhookEnabled bool
	WebhookURL     string
	EmailEnabled   bool
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPTo         []string
	SMTPTLS        bool
	Cooldown       time.Duration
}

// BrokerConfig holds MQTT event stream configuration. Empty URL disables it.
type BrokerConfig struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	cfg := &Config{}
	var err error

	// Server configuration
	if cfg.Server.Port, err = getEnvInt("PORT", 8080); err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.BaseURL = getEnvRequired("BASE_URL")
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))

	// OIDC configuration
	cfg.OIDC.Issuer = getEnvRequired("OIDC_ISSUER")
	cfg.OIDC.ClientID = getEnvRequired("OIDC_CLIENT_ID")
	cfg.OIDC.ClientSecret = getEnvRequired("OIDC_CLIENT_SECRET")
	cfg.OIDC.RedirectURL = getEnvRequired("OIDC_REDIRECT_URL")
	cfg.OIDC.AllowedDomains = splitList(getEnv("OIDC_ALLOWED_DOMAINS", ""))

	// Security configuration
	encKeyHex := getEnvRequired("ENCRYPTION_KEY")
	if encKeyHex != "" {
		encKey, err := hex.DecodeString(encKeyHex)
		if err != nil {
			return nil, fmt.Errorf("%w: ENCRYPTION_KEY: invalid hex: %w", ErrInvalidConfig, err)
		}
		if len(encKey) != 32 {
			return nil, ErrEncryptionKeySize
		}
		cfg.Security.EncryptionKey = encKey
	}

	cfg.Security.SessionSecret = getEnvRequired("SESSION_SECRET")
	if cfg.Security.SessionSecret != "" && len(cfg.Security.SessionSecret) < 32 {
		return nil, ErrSessionSecretSize
	}

	cfg.Security.APIToken = getEnv("API_TOKEN", "")
	if cfg.Security.APIToken != "" && len(cfg.Security.APIToken) < 32 {
		return nil, ErrAPITokenSize
	}

	// Database configuration
	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/syncbridge.db")

	// Analytics configuration
	cfg.Analytics.BaseURL = getEnvRequired("ANALYTICS_BASE_URL")
	if cfg.Analytics.Timeout, err = getEnvDuration("ANALYTICS_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("%w: ANALYTICS_TIMEOUT: %w", ErrInvalidConfig, err)
	}
	if cfg.Analytics.BatchSize, err = getEnvInt("ANALYTICS_BATCH_SIZE", 200); err != nil {
		return nil, fmt.Errorf("%w: ANALYTICS_BATCH_SIZE: %w", ErrInvalidConfig, err)
	}
	if cfg.Analytics.BatchSize < 1 || cfg.Analytics.BatchSize > 1000 {
		return nil, fmt.Errorf("%w: ANALYTICS_BATCH_SIZE must be between 1 and 1000", ErrInvalidConfig)
	}

	// Rate limiting configuration
	if cfg.RateLimiting.RPS, err = getEnvFloat("RATE_LIMIT_RPS", 10.0); err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	if cfg.RateLimiting.Burst, err = getEnvInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}

	// Sync configuration
	if cfg.Sync.Interval, err = getEnvDuration("SYNC_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("%w: SYNC_INTERVAL: %w", ErrInvalidConfig, err)
	}
	if cfg.Sync.Interval < time.Minute {
		return nil, fmt.Errorf("%w: SYNC_INTERVAL must be at least 1m", ErrInvalidConfig)
	}
	if cfg.Sync.RetentionDays, err = getEnvInt("EVENT_LOG_RETENTION_DAYS", 90); err != nil {
		return nil, fmt.Errorf("%w: EVENT_LOG_RETENTION_DAYS: %w", ErrInvalidConfig, err)
	}

	if err := cfg.loadAlerts(); err != nil {
		return nil, err
	}

	// Broker configuration
	cfg.Broker.URL = getEnv("MQTT_BROKER_URL", "")
	cfg.Broker.ClientID = getEnv("MQTT_CLIENT_ID", "syncbridge")
	cfg.Broker.Username = getEnv("MQTT_USERNAME", "")
	cfg.Broker.Password = getEnv("MQTT_PASSWORD", "")

	missing := cfg.getMissingRequired()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *Config) loadAlerts() error {
	var err error
	a := &c.Alerts

	if a.WebhookEnabled, err = getEnvBool("ALERT_WEBHOOK_ENABLED", false); err != nil {
		return fmt.Errorf("%w: ALERT_WEBHOOK_ENABLED: %w", ErrInvalidConfig, err)
	}
	a.WebhookURL = getEnv("ALERT_WEBHOOK_URL", "")

	if a.EmailEnabled, err = getEnvBool("ALERT_EMAIL_ENABLED", false); err != nil {
		return fmt.Errorf("%w: ALERT_EMAIL_ENABLED: %w", ErrInvalidConfig, err)
	}
	a.SMTPHost = getEnv("SMTP_HOST", "")
	if a.SMTPPort, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return fmt.Errorf("%w: SMTP_PORT: %w", ErrInvalidConfig, err)
	}
	a.SMTPUsername = getEnv("SMTP_USERNAME", "")
	a.SMTPPassword = getEnv("SMTP_PASSWORD", "")
	a.SMTPFrom = getEnv("SMTP_FROM", "")
	a.SMTPTo = splitList(getEnv("SMTP_TO", ""))
	if a.SMTPTLS, err = getEnvBool("SMTP_TLS", false); err != nil {
		return fmt.Errorf("%w: SMTP_TLS: %w", ErrInvalidConfig, err)
	}
	if a.Cooldown, err = getEnvDuration("ALERT_COOLDOWN", time.Hour); err != nil {
		return fmt.Errorf("%w: ALERT_COOLDOWN: %w", ErrInvalidConfig, err)
	}
	return nil
}

// getMissingRequired returns a list of missing required configuration values.
func (c *Config) getMissingRequired() []string {
	var missing []string

	if c.Server.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if c.OIDC.Issuer == "" {
		missing = append(missing, "OIDC_ISSUER")
	}
	if c.OIDC.ClientID == "" {
		missing = append(missing, "OIDC_CLIENT_ID")
	}
	if c.OIDC.ClientSecret == "" {
		missing = append(missing, "OIDC_CLIENT_SECRET")
	}
	if c.OIDC.RedirectURL == "" {
		missing = append(missing, "OIDC_REDIRECT_URL")
	}
	if len(c.Security.EncryptionKey) == 0 {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if c.Security.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.Analytics.BaseURL == "" {
		missing = append(missing, "ANALYTICS_BASE_URL")
	}

	return missing
}

// Validate checks URL formats and that the OIDC issuer is reachable.
func (c *Config) Validate(ctx context.Context) error {
	var opts []validator.Option
	if c.IsDevelopment() {
		opts = append(opts, validator.WithAllowPrivateIPs())
	}
	v := validator.New(opts...)

	if err := v.ValidateURL(c.Server.BaseURL, c.IsProduction()); err != nil {
		return fmt.Errorf("%w: BASE_URL: %w", ErrValidationFailed, err)
	}

	if err := v.ValidateOIDCIssuer(ctx, c.OIDC.Issuer); err != nil {
		return fmt.Errorf("%w: OIDC_ISSUER: %w", ErrValidationFailed, err)
	}

	if err := v.ValidateURL(c.OIDC.RedirectURL, c.IsProduction()); err != nil {
		return fmt.Errorf("%w: OIDC_REDIRECT_URL: %w", ErrValidationFailed, err)
	}

	if err := v.ValidateAnalyticsURL(c.Analytics.BaseURL, c.IsProduction()); err != nil {
		return fmt.Errorf("%w: ANALYTICS_BASE_URL: %w", ErrValidationFailed, err)
	}

	if c.BrokerEnabled() {
		if err := v.ValidateBrokerURL(c.Broker.URL); err != nil {
			return fmt.Errorf("%w: MQTT_BROKER_URL: %w", ErrValidationFailed, err)
		}
	}

	if c.AlertsEnabled() {
		if err := notify.ValidateConfig(c.NotifyConfig()); err != nil {
			return fmt.Errorf("%w: alerts: %w", ErrValidationFailed, err)
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// AlertsEnabled returns true if any alert channel is configured.
func (c *Config) AlertsEnabled() bool {
	return c.Alerts.WebhookEnabled || c.Alerts.EmailEnabled
}

// BrokerEnabled returns true if the MQTT event stream is configured.
func (c *Config) BrokerEnabled() bool {
	return c.Broker.URL != ""
}

// NotifyConfig converts the alert settings for the notifier.
func (c *Config) NotifyConfig() *notify.Config {
	return &notify.Config{
		WebhookEnabled: c.Alerts.WebhookEnabled,
		WebhookURL:     c.Alerts.WebhookURL,
		EmailEnabled:   c.Alerts.EmailEnabled,
		SMTPHost:       c.Alerts.SMTPHost,
		SMTPPort:       c.Alerts.SMTPPort,
		SMTPUsername:   c.Alerts.SMTPUsername,
		SMTPPassword:   c.Alerts.SMTPPassword,
		SMTPFrom:       c.Alerts.SMTPFrom,
		SMTPTo:         c.Alerts.SMTPTo,
		SMTPTLS:        c.Alerts.SMTPTLS,
		CooldownPeriod: c.Alerts.Cooldown,
	}
}

// BrokerConfig converts the broker settings for the publisher.
func (c *Config) BrokerConfig() broker.Config {
	return broker.Config{
		URL:      c.Broker.URL,
		ClientID: c.Broker.ClientID,
		Username: c.Broker.Username,
		Password: c.Broker.Password,
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRequired returns the value of an environment variable.
// Returns empty string if not set (caller should check for required values).
func getEnvRequired(key string) string {
	return os.Getenv(key)
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}

// splitList splits a comma separated value, dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvBool returns the boolean value of an environment variable or a default.
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean: %w", err)
	}
	return parsed, nil
}

// getEnvDuration returns the duration value of an environment variable or a
// default. Plain integers are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	return parsed, nil
}
