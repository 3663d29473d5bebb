package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/retry"
)

// Prefix is the environment variable prefix, e.g. ENGAGEMENT_HTTP_PORT.
const Prefix = "ENGAGEMENT"

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the engagement service.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string      `envconfig:"BUILD_TARGET" default:"local"`
	DBDriver    string      `envconfig:"DB_DRIVER" default:"auto"`
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	HTTPPort int    `envconfig:"HTTP_PORT" default:"11550"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	PostgresDSN      string `envconfig:"POSTGRES_DSN" default:""`
	PostgresMaxConns int32  `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
	SQLitePath       string `envconfig:"SQLITE_PATH" default:"data/engagement.db"`
	EnsureSchema     bool   `envconfig:"ENSURE_SCHEMA" default:"true"`

	// Upstream API
	UpstreamBaseURL     string        `envconfig:"UPSTREAM_BASE_URL" default:"https://api.twitter.com/2"`
	UpstreamBearerToken string        `envconfig:"UPSTREAM_BEARER_TOKEN" default:""`
	UpstreamTimeout     time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	RetryAttempts       int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay          time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	ThrottleDefaultWait time.Duration `envconfig:"THROTTLE_DEFAULT_WAIT" default:"60s"`
	ThrottleMaxWait     time.Duration `envconfig:"THROTTLE_MAX_WAIT" default:"15m"`

	// Ingestion
	IngestEnabled  bool          `envconfig:"INGEST_ENABLED" default:"true"`
	IngestInterval time.Duration `envconfig:"INGEST_INTERVAL" default:"15m"`
	IngestWorkers  int           `envconfig:"INGEST_WORKERS" default:"10"`
	PageSize       int           `envconfig:"PAGE_SIZE" default:"10"`
	ProjectFile    string        `envconfig:"PROJECT_FILE" default:"config/project.yaml"`
	Accounts       []string      `envconfig:"ACCOUNTS"`
	Keywords       []string      `envconfig:"KEYWORDS"`
	Hashtags       []string      `envconfig:"HASHTAGS"`

	// Wallet eligibility
	EligibilityFile string `envconfig:"ELIGIBILITY_FILE" default:"data/eligible_wallets.csv"`
	EligibilityOpen bool   `envconfig:"ELIGIBILITY_OPEN" default:"false"`

	// Embedding / similarity index; empty WeaviateURL disables indexing
	EmbedProvider  string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel     string `envconfig:"EMBED_MODEL" default:"nomic-embed-text"`
	OllamaURL      string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	WeaviateURL    string `envconfig:"WEAVIATE_URL" default:""`
	IndexQueueSize int    `envconfig:"INDEX_QUEUE_SIZE" default:"1024"`

	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"30"`
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.IngestWorkers <= 0 || c.IngestWorkers > 10 {
		c.IngestWorkers = 10
	}
	return nil
}

// New creates a new Config by parsing ENGAGEMENT_* environment variables.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Bool("bearer_token_present", cfg.UpstreamBearerToken != "").
		Bool("ingest_enabled", cfg.IngestEnabled).
		Dur("ingest_interval", cfg.IngestInterval).
		Str("project_file", cfg.ProjectFile).
		Str("eligibility_file", cfg.EligibilityFile).
		Str("weaviate_url", cfg.WeaviateURL).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "sqlite",
		Environment:               EnvTesting,
		HTTPPort:                  11550,
		LogLevel:                  "debug",
		PostgresMaxConns:          2,
		SQLitePath:                ":memory:",
		EnsureSchema:              true,
		UpstreamBaseURL:           "http://localhost:0",
		UpstreamBearerToken:       "test-token",
		UpstreamTimeout:           time.Second,
		RetryAttempts:             3,
		RetryDelay:                time.Millisecond,
		ThrottleDefaultWait:       time.Millisecond,
		ThrottleMaxWait:           10 * time.Millisecond,
		IngestInterval:            time.Minute,
		IngestWorkers:             2,
		PageSize:                  10,
		EligibilityOpen:           true,
		EmbedProvider:             "none",
		IndexQueueSize:            16,
		BootstrapTimeoutSeconds:   1,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// RetryPolicy builds the upstream retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:            c.RetryAttempts,
		Delay:               c.RetryDelay,
		DefaultThrottleWait: c.ThrottleDefaultWait,
		MaxThrottleWait:     c.ThrottleMaxWait,
	}
}
