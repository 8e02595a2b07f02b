package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signingKey = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stagepass.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
jwt:
  signing_key: "`+signingKey+`"
  access_ttl: 5m
lockout:
  threshold: 3
store:
  backend: memory
log:
  level: debug
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)

	// Untouched keys keep their defaults.
	assert.Equal(t, "stagepass", cfg.JWT.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.Duration)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, `
jwt:
  signing_key: "`+signingKey+`"
store:
  backend: memory
http:
  addr: ":7000"
log:
  format: text
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http.addr=:9000"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "text", cfg.Log.Format, "unset flags must not clobber the file")
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	t.Setenv(EnvSigningKey, signingKey)
	t.Setenv(EnvDatabaseURL, "postgres://app@localhost/stagepass")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, signingKey, cfg.JWT.SigningKey)
	assert.Equal(t, "postgres://app@localhost/stagepass", cfg.Database.URL)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"short key":        "jwt:\n  signing_key: short\nstore:\n  backend: memory\n",
		"unknown backend":  "jwt:\n  signing_key: " + signingKey + "\nstore:\n  backend: sqlite\n",
		"postgres no url":  "jwt:\n  signing_key: " + signingKey + "\n",
		"redis no address": "jwt:\n  signing_key: " + signingKey + "\ndatabase:\n  url: postgres://x\nstore:\n  backend: redis\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(EnvSigningKey, "")
			t.Setenv(EnvDatabaseURL, "")
			_, err := Load(writeFile(t, body), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
