package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"15m":  15 * time.Minute,
		"1d":   24 * time.Hour,
		"10d":  240 * time.Hour,
		"0.5d": 12 * time.Hour,
		"2h":   2 * time.Hour,
	}
	for raw, want := range cases {
		got, err := ParseDuration(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "d", "abc", "-1d", "0s", "ten days"} {
		_, err := ParseDuration(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadAppliesDefaultsAndAliases(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCESS_TOKEN_SECRET", "a-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "r-secret")
	t.Setenv("REFRESH_TOKEN_EXPIRY", "7d")
	t.Setenv("ADVISOR_AGENT_RETRIES", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "a-secret", cfg.Auth.AccessTokenSecret)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Agent.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.Agent.Timeout)
	assert.Equal(t, 2, cfg.Agent.Retries)
	assert.Equal(t, "portfolio-archives", cfg.Storage.KeyPrefix)
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.False(t, cfg.IsProduction())
}

func TestLoadPrefersPrefixedEnvOverAlias(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCESS_TOKEN_SECRET", "alias")
	t.Setenv("ADVISOR_AUTH_ACCESSTOKENSECRET", "prefixed")
	t.Setenv("REFRESH_TOKEN_SECRET", "r")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Auth.AccessTokenSecret)
	assert.True(t, cfg.IsProduction())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ACCESS_TOKEN_SECRET=from-file\nREFRESH_TOKEN_SECRET=from-file\nDATABASE_URL=postgres://u:p@localhost/advisor\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("ACCESS_TOKEN_SECRET")
		os.Unsetenv("REFRESH_TOKEN_SECRET")
		os.Unsetenv("DATABASE_URL")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.AccessTokenSecret)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@localhost/advisor", cfg.Database.DSN)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")
	t.Setenv("ADVISOR_AUTH_ACCESSTOKENSECRET", "")
	t.Setenv("ADVISOR_AUTH_REFRESHTOKENSECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCESS_TOKEN_SECRET", "a")
	t.Setenv("REFRESH_TOKEN_SECRET", "r")
	t.Setenv("ADVISOR_DATABASE_DRIVER", "mysql")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCESS_TOKEN_SECRET", "a")
	t.Setenv("REFRESH_TOKEN_SECRET", "r")
	t.Setenv("ADVISOR_SERVER_TRUSTEDPROXIES", "10.0.0.1, 192.168.0.0/16,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.Server.TrustedProxies)
}
