// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Session backends.
const (
	SessionBackendGraph    = "graph"
	SessionBackendDynamoDB = "dynamodb"
)

// Login flows.
const (
	AuthFlowCode    = "code"
	AuthFlowIDToken = "id_token"
)

// DefaultEnvFiles are read when Load is given no files. Missing files are
// skipped.
var DefaultEnvFiles = []string{".env", ".secrets.env"}

// Config holds all application configuration
type Config struct {
	// Server
	ServerAddress string `envconfig:"SERVER_ADDRESS" default:":8000"`
	Environment   string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	PublicURL     string `envconfig:"PUBLIC_URL" default:"http://localhost:8000"`

	// Graph store
	Neo4jURI      string `envconfig:"NEO4J_URI" default:"neo4j://localhost:7687"`
	Neo4jUsername string `envconfig:"NEO4J_USERNAME" default:"neo4j"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD"`
	Neo4jDatabase string `envconfig:"NEO4J_DATABASE" default:"neo4j"`

	// Sessions
	SessionBackend      string        `envconfig:"SESSION_BACKEND" default:"graph"`
	SessionTable        string        `envconfig:"SESSION_TABLE" default:"topicref-sessions"`
	AWSRegion           string        `envconfig:"AWS_REGION" default:"us-east-1"`
	SessionTTL          time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	LoginTimeout        time.Duration `envconfig:"LOGIN_TIMEOUT" default:"10m"`
	SessionReapSchedule string        `envconfig:"SESSION_REAP_SCHEDULE" default:"@every 15m"`
	CookieSecure        bool          `envconfig:"COOKIE_SECURE" default:"false"`
	LoginRateLimit      int           `envconfig:"LOGIN_RATE_LIMIT" default:"30"`

	// SessionMode is "api" (401 for anonymous writes) or "gateway" (redirect to login)
	SessionMode string `envconfig:"SESSION_MODE" default:"api"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`

	// Identity provider
	IDPHost      string        `envconfig:"IDP_HOST" default:"https://login.microsoftonline.com/common"`
	ClientID     string        `envconfig:"CLIENT_ID"`
	ClientSecret string        `envconfig:"CLIENT_SECRET"`
	AuthFlow     string        `envconfig:"AUTH_FLOW" default:"code"`
	IDPTimeout   time.Duration `envconfig:"IDP_TIMEOUT" default:"10s"`

	// Events; an empty bus name publishes to the log only
	EventBusName string `envconfig:"EVENT_BUS_NAME"`

	// Feature flags
	EnableMetrics bool     `envconfig:"ENABLE_METRICS" default:"true"`
	EnableTracing bool     `envconfig:"ENABLE_TRACING" default:"false"`
	CORSOrigins   []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads envFiles (or DefaultEnvFiles) into the environment without
// overriding variables already set, then decodes and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case SessionBackendGraph:
	case SessionBackendDynamoDB:
		if c.SessionTable == "" {
			return errors.New("SESSION_TABLE is required for the dynamodb session backend")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBackendGraph, SessionBackendDynamoDB, c.SessionBackend)
	}

	switch c.AuthFlow {
	case AuthFlowCode:
		if c.ClientSecret == "" {
			return errors.New("CLIENT_SECRET is required for the code flow")
		}
	case AuthFlowIDToken:
	default:
		return fmt.Errorf("AUTH_FLOW must be %q or %q, got %q", AuthFlowCode, AuthFlowIDToken, c.AuthFlow)
	}
	if c.ClientID == "" {
		return errors.New("CLIENT_ID is required")
	}

	if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PUBLIC_URL must be an absolute url, got %q", c.PublicURL)
	}
	if c.Neo4jURI == "" {
		return errors.New("NEO4J_URI is required")
	}
	if c.SessionTTL <= 0 || c.LoginTimeout <= 0 || c.IDPTimeout <= 0 {
		return errors.New("SESSION_TTL, LOGIN_TIMEOUT and IDP_TIMEOUT must be positive")
	}
	if c.SessionMode != "api" && c.SessionMode != "gateway" {
		return fmt.Errorf("SESSION_MODE must be \"api\" or \"gateway\", got %q", c.SessionMode)
	}
	if c.LoginRateLimit <= 0 {
		return errors.New("LOGIN_RATE_LIMIT must be positive")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
