package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// MemoryDatabaseURL selects the in-memory store instead of PostgreSQL (local development only)
const MemoryDatabaseURL = "memory"

// Config holds the application configuration
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	Port        string `envconfig:"PORT" default:"8080"`
	JWTSecret   string `envconfig:"JWT_SECRET"`

	AppURL       string `envconfig:"APP_URL" default:"http://localhost:3000"`
	DefaultRoute string `envconfig:"DEFAULT_ROUTE" default:"/"`

	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`

	NATSURL            string   `envconfig:"NATS_URL"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	Google GoogleConfig `envconfig:"GOOGLE"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON"`

	DevMode                  bool `envconfig:"DEV_MODE"`
	RequireEmailConfirmation bool `envconfig:"REQUIRE_EMAIL_CONFIRMATION"`
	// AccountRateLimit caps /api/signin and /api/signup requests per IP per 10 minutes; 0 disables
	AccountRateLimit int `envconfig:"ACCOUNT_RATE_LIMIT" default:"20"`
}

// GoogleConfig configures Google account linking. Linking is disabled when ClientID is empty.
type GoogleConfig struct {
	ClientID        string `envconfig:"CLIENT_ID"`
	ClientSecret    string `envconfig:"CLIENT_SECRET"`
	ProviderURL     string `envconfig:"PROVIDER_URL" default:"https://accounts.google.com"`
	RedirectURLBase string `envconfig:"REDIRECT_URL_BASE"`
}

// Enabled reports whether Google linking is configured
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	// DATABASE_URL (required); log connection details with the password masked
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.DatabaseURL != MemoryDatabaseURL {
		logTarget(cfg.DatabaseURL)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if cfg.Google.Enabled() {
		if cfg.Google.ClientSecret == "" {
			return nil, fmt.Errorf("with Google linking enabled, GOOGLE_CLIENT_SECRET environment variable is required")
		}
		if cfg.Google.RedirectURLBase == "" {
			return nil, fmt.Errorf("with Google linking enabled, GOOGLE_REDIRECT_URL_BASE environment variable is required")
		}
	}

	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	if !strings.HasPrefix(cfg.DefaultRoute, "/") {
		cfg.DefaultRoute = "/" + cfg.DefaultRoute
	}

	return cfg, nil
}

func logTarget(databaseURL string) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	user := u.User.Username()
	if user == "" {
		user = "(none)"
	}
	log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, dbName, user)
}
