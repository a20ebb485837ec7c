package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithSecretFromEnv(t *testing.T) {
	t.Setenv("LRNCHAT_JWT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9090", cfg.Server.Listen)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("LRNCHAT_JWT_SECRET", "")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("LRNCHAT_JWT_SECRET", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
listen = "0.0.0.0:8080"

[auth]
jwt_secret = "file-secret"

[store]
timeout_ms = 250
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Listen)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout())
	assert.Equal(t, "lrnchat", cfg.Mongo.Database)
}
