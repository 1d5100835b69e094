package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-existe.yaml"))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "postgres", cfg.Storage.Driver)
	require.Equal(t, "memory", cfg.Cache.Kind)
	require.Equal(t, "http://localhost:8080", cfg.OAuth2.Issuer)
	require.Equal(t, "/login", cfg.OAuth2.LoginURL)
	require.Equal(t, "sessionid", cfg.Session.CookieName)
	require.Equal(t, time.Hour, cfg.AccessTTL())
	require.Equal(t, 5*time.Minute, cfg.AuthCodeTTL())
	require.Equal(t, 720*time.Hour, cfg.RefreshTokenAge())
	require.Equal(t, 720*time.Hour, cfg.KeyValidityPeriod())
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  secret_key: yaml-secret
server:
  addr: ":9000"
storage:
  driver: memory
oauth2:
  issuer: https://sso.example.org
  access_ttl: 15m
  browser_client_id: browser-ui
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "yaml-secret", cfg.App.SecretKey)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, "https://sso.example.org", cfg.OAuth2.Issuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL())
	require.Equal(t, "browser-ui", cfg.OAuth2.BrowserClientID)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
oauth2:
  issuer: https://del-yaml.test
`), 0o600))

	t.Setenv("OAUTH2_ISSUER", "https://del-env.test")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://del-env.test", cfg.OAuth2.Issuer)
	require.Equal(t, "memory", cfg.Storage.Driver)
}

func TestParseDur_FallsBackOnGarbage(t *testing.T) {
	cfg := &Config{}
	cfg.OAuth2.AccessTTL = "cuarenta minutos"
	require.Equal(t, time.Hour, cfg.AccessTTL())

	cfg.OAuth2.AccessTTL = "-5m"
	require.Equal(t, time.Hour, cfg.AccessTTL())
}
