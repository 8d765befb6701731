package mysequel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNFromConfig(t *testing.T) {
	dsn, err := dsnFromConfig(Config{DSN: "user:pw@tcp(db:3306)/app"})
	require.NoError(t, err)
	assert.Equal(t, "user:pw@tcp(db:3306)/app", dsn)

	dsn, err = dsnFromConfig(Config{
		Host:     "db.local",
		Port:     3307,
		Username: "app",
		Password: "secret",
		Database: "orders",
		Params:   map[string]string{"charset": "utf8mb4"},
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:secret@tcp(db.local:3307)/orders")
	assert.Contains(t, dsn, "charset=utf8mb4")

	_, err = dsnFromConfig(Config{})
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MYSEQUEL_HOST", "db.local")
	t.Setenv("MYSEQUEL_PORT", "3306")
	t.Setenv("MYSEQUEL_USERNAME", "app")
	t.Setenv("MYSEQUEL_DATABASE", "orders")
	t.Setenv("MYSEQUEL_PARAMS", "parseTime=true&loc=UTC")
	t.Setenv("MYSEQUEL_MAX_OPEN", "20")
	t.Setenv("MYSEQUEL_CONN_MAX_LIFETIME", "5m")
	t.Setenv("MYSEQUEL_SLOW_QUERY_THRESHOLD", "250ms")
	t.Setenv("MYSEQUEL_PREPARED", "false")
	t.Setenv("MYSEQUEL_RETRY_COUNT", "4")
	t.Setenv("MYSEQUEL_PING_FREQUENCY", "30s")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, "db.local", cfg.Host)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, "app", cfg.Username)
	assert.Equal(t, "orders", cfg.Database)
	assert.Equal(t, map[string]string{"parseTime": "true", "loc": "UTC"}, cfg.Params)
	assert.Equal(t, 20, cfg.Pool.MaxOpen)
	assert.Equal(t, 5*time.Minute, cfg.Pool.ConnMaxLifetime)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowQueryThreshold)

	require.NotNil(t, cfg.Options.Prepared)
	assert.False(t, *cfg.Options.Prepared)
	require.NotNil(t, cfg.Options.RetryCount)
	assert.Equal(t, 4, *cfg.Options.RetryCount)
	assert.Nil(t, cfg.Options.Retry)

	require.NotNil(t, cfg.Options.Ping)
	opts := Resolve(DefaultOptions(), cfg.Options)
	require.NotNil(t, opts.Ping)
	assert.Equal(t, 30*time.Second, opts.Ping.Frequency)
	assert.Equal(t, DefaultPingQuery, opts.Ping.Query)
	assert.False(t, opts.Prepared)
	assert.True(t, opts.Retry)
}

func TestLoadConfigFromEnv_NoPingVariables(t *testing.T) {
	t.Setenv("MYSEQUEL_DSN", "root@tcp(127.0.0.1:3306)/test")
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Nil(t, cfg.Options.Ping)
	assert.Equal(t, "root@tcp(127.0.0.1:3306)/test", cfg.DSN)
}

func TestLoadConfigFromEnv_BadValue(t *testing.T) {
	t.Setenv("MYSEQUEL_PORT", "not-a-number")
	_, err := LoadConfigFromEnv()
	assert.Error(t, err)
}
