package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Booking.Hold)
	assert.Equal(t, 30*time.Minute, cfg.Waitlist.ClaimWindow)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, time.Minute, cfg.Sweeper.InitialDelay)
	assert.Equal(t, 100, cfg.Sweeper.BatchSize)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 64, cfg.WorkerPool.QueueSize)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  cache_ttl_seconds: 2
database:
  driver: sqlite
  dsn: "file::memory:"
booking:
  hold_minutes: 15
waitlist:
  claim_window_minutes: 10
sweeper:
  enabled: true
  interval_seconds: 30
  initial_delay_seconds: -1
worker_pool:
  size: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Booking.Hold)
	assert.Equal(t, 10*time.Minute, cfg.Waitlist.ClaimWindow)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Zero(t, cfg.Sweeper.InitialDelay)
	assert.Equal(t, 3, cfg.WorkerPool.Size)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("REDIS_URL", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")

	path := writeConfig(t, `
database:
  dsn: "from-file"
redis:
  db: 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "pub", cfg.Push.PublicKey)
	assert.Equal(t, "priv", cfg.Push.PrivateKey)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)
}
