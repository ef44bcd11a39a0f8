package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ClientConfig configures the terminal client
type ClientConfig struct {
	APIURL       string        `envconfig:"API_URL" default:"http://localhost:8080"`
	SessionFile  string        `envconfig:"SESSION_FILE"`
	DefaultRoute string        `envconfig:"DEFAULT_ROUTE" default:"/"`
	NATSURL      string        `envconfig:"NATS_URL"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"warn"`
}

// LoadClient reads SAFESPACE_* variables. The session file defaults to
// ~/.config/safespace/session.json.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := envconfig.Process("safespace", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("SAFESPACE_API_URL must not be empty")
	}

	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config dir: %w", err)
		}
		cfg.SessionFile = filepath.Join(dir, "safespace", "session.json")
	}
	return cfg, nil
}
