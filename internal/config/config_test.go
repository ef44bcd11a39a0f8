package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:pw@localhost:5432/safespace?sslmode=disable")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", MemoryDatabaseURL)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_URL", "http://localhost:3000/")
	t.Setenv("DEFAULT_ROUTE", "map")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.AppURL)
	assert.Equal(t, "/map", cfg.DefaultRoute)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 20, cfg.AccountRateLimit)
	assert.False(t, cfg.Google.Enabled())
}

func TestLoad_GoogleNeedsSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", MemoryDatabaseURL)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GOOGLE_CLIENT_ID", "client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CLIENT_SECRET")
}

func TestLoadClient(t *testing.T) {
	t.Setenv("SAFESPACE_API_URL", "http://api.test/")
	t.Setenv("SAFESPACE_SESSION_FILE", "/tmp/ss-session.json")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", cfg.APIURL)
	assert.Equal(t, "/tmp/ss-session.json", cfg.SessionFile)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadClient_DefaultSessionFile(t *testing.T) {
	t.Setenv("SAFESPACE_SESSION_FILE", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Contains(t, cfg.SessionFile, "session.json")
}
