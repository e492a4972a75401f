// Package config provides process configuration read from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Port     string
	BaseURL  string
	LogLevel string

	// DefaultUserID is the session identity used when the OAuth flow is
	// started without one.
	DefaultUserID string

	GitHub GitHubConfig
	Gmail  GmailConfig
	Store  StoreConfig
	Eval   EvalConfig

	ClickHouseDSN string
	OTelEnabled   bool
}

// GitHubConfig covers the MCP endpoint, the REST fallback and the OAuth app.
type GitHubConfig struct {
	MCPURL        string
	APIURL        string
	FallbackToken string
	ClientID      string
	ClientSecret  string
	// HandshakeTimeout bounds a single MCP connect attempt.
	HandshakeTimeout time.Duration
}

// GmailConfig holds the OAuth refresh credentials for the outbound mailbox.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Enabled reports whether all three Gmail credentials are present.
func (g GmailConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RefreshToken != ""
}

type StoreConfig struct {
	Backend       string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

type EvalConfig struct {
	SamplingRate float64
	ConfigPath   string
	QueueSize    int
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	port := Getenv("PORT", "5000")
	cfg := &Config{
		Port:          port,
		BaseURL:       ResolveBaseURL(os.Getenv("BASE_URL"), os.Getenv("RENDER_EXTERNAL_URL"), port),
		LogLevel:      Getenv("LOG_LEVEL", "info"),
		DefaultUserID: Getenv("DEFAULT_USER_ID", "default-user"),
		GitHub: GitHubConfig{
			MCPURL:           Getenv("GITHUB_MCP_URL", "https://api.githubcopilot.com/mcp/"),
			APIURL:           Getenv("GITHUB_API_URL", "https://api.github.com"),
			FallbackToken:    Getenv("GITHUB_PERSONAL_ACCESS_TOKEN", ""),
			ClientID:         Getenv("GITHUB_CLIENT_ID", ""),
			ClientSecret:     Getenv("GITHUB_CLIENT_SECRET", ""),
			HandshakeTimeout: ParseDurationEnv("GITHUB_MCP_HANDSHAKE_TIMEOUT", 30*time.Second),
		},
		Gmail: GmailConfig{
			ClientID:     Getenv("GMAIL_CLIENT_ID", ""),
			ClientSecret: Getenv("GMAIL_CLIENT_SECRET", ""),
			RefreshToken: Getenv("GMAIL_REFRESH_TOKEN", ""),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(Getenv("AGENT_STORE_BACKEND", "sqlite")),
			SQLitePath:    Getenv("AGENT_SQLITE_PATH", "./.agent-backend/state.db"),
			DatabaseURL:   Getenv("DATABASE_URL", ""),
			RedisAddr:     Getenv("AGENT_REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: Getenv("AGENT_REDIS_PASSWORD", ""),
			RedisDB:       ParseIntEnv("AGENT_REDIS_DB", 0),
			RedisTTL:      ParseDurationEnv("AGENT_REDIS_TTL", 24*time.Hour),
		},
		Eval: EvalConfig{
			SamplingRate: ParseFloatEnv("EVAL_SAMPLING_RATE", 1),
			ConfigPath:   Getenv("EVAL_CONFIG", ""),
			QueueSize:    ParseIntEnv("EVAL_QUEUE_SIZE", 1024),
		},
		ClickHouseDSN: Getenv("CLICKHOUSE_DSN", ""),
		OTelEnabled:   ParseBoolString(os.Getenv("OTEL_ENABLED"), false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are set and values are in range.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GitHub.MCPURL == "" {
		return fmt.Errorf("GITHUB_MCP_URL cannot be empty")
	}
	switch c.Store.Backend {
	case "sqlite", "hybrid":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("AGENT_SQLITE_PATH cannot be empty")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported AGENT_STORE_BACKEND %q (use sqlite, postgres, or hybrid)", c.Store.Backend)
	}
	if c.Eval.SamplingRate < 0 || c.Eval.SamplingRate > 1 {
		return fmt.Errorf("EVAL_SAMPLING_RATE must be within [0, 1], got %v", c.Eval.SamplingRate)
	}
	if c.Eval.QueueSize <= 0 {
		return fmt.Errorf("EVAL_QUEUE_SIZE must be > 0")
	}
	return nil
}

// OAuthEnabled reports whether the GitHub OAuth app is configured.
func (c *Config) OAuthEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// ResolveBaseURL picks the externally reachable URL of this process:
// an explicit base URL, then the hosting platform's URL, then localhost.
func ResolveBaseURL(explicit, platform, port string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(platform); v != "" {
		return strings.TrimRight(v, "/")
	}
	if strings.TrimSpace(port) == "" {
		port = "5000"
	}
	return "http://localhost:" + port
}
