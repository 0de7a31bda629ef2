package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsFastWithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("SCHEDULER_MAX_THREADS", "")
	t.Setenv("REDIS_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.Database.URL)
	assert.Equal(t, 9797, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Scheduler.MaxThreads)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.PollEvery)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "task-updates", cfg.Redis.Channel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("SCHEDULER_MAX_THREADS", "8")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDRESS", "cache:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Scheduler.MaxThreads)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Address)
}
