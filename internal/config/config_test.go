package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
env: staging
auth:
  secret: from-file
  access_ttl: 2h
http:
  addr: ":9000"
  cors_origins: ["https://app.example.com"]
  trusted_proxies: ["10.0.0.0/8", "192.0.2.7"]
voice:
  api_key: file-key
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("SALESDECK_AUTH__SECRET", "from-env")
	t.Setenv("SALESDECK_INVITES__TTL", "48h")
	t.Setenv("SALESDECK_ARCHIVE__USE_PATH_STYLE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, cfg.HTTP.TrustedProxies)
	assert.Equal(t, "file-key", cfg.Voice.APIKey)
	assert.Equal(t, 48*time.Hour, cfg.Invites.TTL)
	assert.True(t, cfg.Archive.UsePathStyle)

	// untouched defaults survive
	assert.Equal(t, "HS256", cfg.Auth.Algorithm)
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	assert.Equal(t, "@every 1h", cfg.Invites.SweepSchedule)
}

func TestLoadUsesPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  secret: s\nlog:\n  level: debug\n"), 0o600))
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("SALESDECK_AUTH__SECRET", "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	cfg := Default()
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := Default()
	cfg.Auth.Secret = "x"
	require.NoError(t, cfg.Validate())

	cfg.Auth.AccessTTL = 0
	cfg.Invites.TTL = -time.Hour
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.access_ttl")
	assert.Contains(t, err.Error(), "invites.ttl")
}

func TestTrustedProxyPrefixes(t *testing.T) {
	h := HTTPConfig{TrustedProxies: []string{" 10.1.2.3/8 ", "192.0.2.7", "", "::ffff:198.51.100.1"}}
	got, err := h.TrustedProxyPrefixes()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
		netip.MustParsePrefix("198.51.100.1/32"),
	}, got)

	cfg := Default()
	cfg.Auth.Secret = "x"
	cfg.HTTP.TrustedProxies = []string{"not-an-ip"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.trusted_proxies")
}
