package mysequel

import (
	"context"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig describes an embedded SQLite database served through the
// same Handle as MySQL. It is mainly useful for local development and tests.
type SQLiteConfig struct {
	// Path of the database file; ":memory:" keeps it in memory.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	BusyTimeout time.Duration
	JournalMode string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	Synchronous string // FULL, NORMAL, OFF
	ForeignKeys bool
}

// DefaultSQLiteConfig returns a file-less configuration. An in-memory
// database lives on a single connection, so the pool is capped at one.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "MEMORY",
		Synchronous:     "OFF",
		ForeignKeys:     true,
	}
}

// OpenSQLite opens cfg with the modernc.org/sqlite driver and wraps it in a
// Handle configured by o.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig, o Overrides) (*Handle, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	return Open(ctx, Config{
		Driver: "sqlite",
		DSN:    sqliteDSN(cfg),
		Pool: PoolConfig{
			MaxOpen:         cfg.MaxOpenConns,
			MaxIdle:         cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		},
		Options: o,
	})
}

// sqliteDSN renders cfg using the driver's _pragma parameters. Pragmas are
// applied to every new connection.
func sqliteDSN(cfg SQLiteConfig) string {
	q := url.Values{}
	if cfg.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}
	if cfg.JournalMode != "" {
		q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", cfg.JournalMode))
	}
	if cfg.Synchronous != "" {
		q.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.Synchronous))
	}
	if cfg.ForeignKeys {
		q.Add("_pragma", "foreign_keys(1)")
	}
	if len(q) == 0 {
		return cfg.Path
	}
	return cfg.Path + "?" + q.Encode()
}
