package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "none", cfg.PubSub.Driver)
	assert.Equal(t, []string{"account-notify"}, cfg.PubSub.Kafka.Topics)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "dbserver1.public.relationships", cfg.Kafka.Topic)
	assert.Equal(t, 100*time.Millisecond, cfg.Kafka.PollTimeout)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Graph.AllowSelfFollow)
	assert.Equal(t, 30, cfg.Feed.PageSize)
	assert.Equal(t, time.Minute, cfg.Reconciler.Interval)
	assert.Equal(t, 100, cfg.Reconciler.TopN)
	assert.False(t, cfg.UseMinDigestCost())
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
app:
  env: test
server:
  port: 9000
graph:
  allow_self_follow: false
feed:
  page_size: 50
database:
  driver: postgres
  host: db
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("RECONCILER_INTERVAL", "5s")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Graph.AllowSelfFollow)
	assert.Equal(t, 50, cfg.Feed.PageSize)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5*time.Second, cfg.Reconciler.Interval)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.UseMinDigestCost())
}
