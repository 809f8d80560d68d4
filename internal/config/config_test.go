package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_CONFIG_PATH", "")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadSize)
	assert.Equal(t, 20, cfg.DBMaxConnections())
	assert.Equal(t, 2*time.Minute, cfg.PresenceTTL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.PushServiceURL)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "api.yaml"), []byte(
		"server_addr: \":9000\"\nmax_upload_size_mb: 5\nredis_url: redis://cache:6379\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "database.yaml"), []byte(
		"database_url: postgres://u:p@db:5432/x\ndb_max_connections: 7\n"), 0o644))
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_CONFIG_PATH", "")
	t.Setenv("SERVER_ADDR", ":9100")

	cfg := Load()
	assert.Equal(t, ":9100", cfg.ServerAddr)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadSize)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DatabaseURL())
	assert.Equal(t, 7, cfg.DBMaxConnections())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WS_FRAMES_PER_SECOND=3\n"), 0o644))
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_CONFIG_PATH", "")
	t.Setenv("APP_ENV", "")
	t.Cleanup(func() { os.Unsetenv("WS_FRAMES_PER_SECOND") })

	cfg := Load()
	assert.Equal(t, 3, cfg.WSFramesPerSecond)
}

func TestEnvIntFallback(t *testing.T) {
	t.Setenv("X_INT", "nope")
	assert.Equal(t, 4, envInt("X_INT", 4))
	t.Setenv("X_INT", "12")
	assert.Equal(t, 12, envInt("X_INT", 4))
}
