package mysequel

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XSAM/otelsql"
	"golang.org/x/sync/singleflight"
)

// Handle is the entry point of the layer: it owns one underlying Pool and
// runs every query through acquire, bootstrap, execute and release/destroy.
type Handle struct {
	pool *poolFacade
	exec Executor
	opts Options

	closed atomic.Bool
	inst   atomic.Pointer[instrumentation]

	// leak detection
	borrowWarnNS atomic.Int64
	leakMu       sync.RWMutex
	leakHandler  func(BorrowLeak)

	monitor   *HealthMonitor
	sweeps    singleflight.Group
	lastSweep atomic.Pointer[HealthStatus]
}

// poolFacade is the only place the Handle touches the underlying Pool.
type poolFacade struct {
	pool    Pool
	endOnce sync.Once
	endDone chan struct{}
	endErr  error
}

// acquire suspends until the pool hands out a connection. Pool errors are
// returned untouched.
func (f *poolFacade) acquire(ctx context.Context) (Conn, error) {
	return f.pool.GetConnection(ctx)
}

// end starts draining the pool on the first call and waits for the drain
// to finish or ctx to end. The drain itself is not bound to any caller's
// ctx, so a call that gave up early leaves later calls something to wait on.
func (f *poolFacade) end(ctx context.Context) error {
	f.endOnce.Do(func() {
		f.endDone = make(chan struct{})
		go func(ctx context.Context) {
			defer close(f.endDone)
			f.endErr = f.pool.End(ctx)
		}(context.WithoutCancel(ctx))
	})
	select {
	case <-f.endDone:
		return f.endErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New wraps an existing pool and execution primitive. opts should come from
// Resolve. A health monitor is started when opts.Ping has a non-zero
// Frequency.
func New(pool Pool, exec Executor, opts Options) *Handle {
	h := &Handle{
		pool: &poolFacade{pool: pool},
		exec: exec,
		opts: opts,
	}
	h.inst.Store(&instrumentation{})
	if opts.Ping != nil && opts.Ping.Frequency > 0 {
		h.monitor = NewHealthMonitor(h, opts.Ping.Frequency)
		h.monitor.Start()
	}
	return h
}

// Open creates the underlying database/sql pool described by cfg, verifies
// it with a ping and wraps it in a Handle. The resolved Options are forwarded
// verbatim to the SQLPool.
func Open(ctx context.Context, cfg Config) (*Handle, error) {
	driverName := cfg.Driver
	if driverName == "" {
		driverName = "mysql"
	}
	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	var db *sql.DB
	if cfg.Telemetry.Enabled {
		db, err = otelsql.Open(driverName, dsn)
	} else {
		db, err = sql.Open(driverName, dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("mysequel: open %s: %w", driverName, err)
	}
	applyPoolConfig(db, cfg.Pool)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysequel: ping %s: %w", driverName, err)
	}
	opts := Resolve(DefaultOptions(), cfg.Options)
	sp := NewSQLPool(db, opts)
	h := New(sp, sp, opts)
	h.SetSlowQueryThreshold(cfg.SlowQueryThreshold)
	return h, nil
}

// OpenEnv is Open with the configuration read by LoadConfigFromEnv.
func OpenEnv(ctx context.Context) (*Handle, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

func applyPoolConfig(db *sql.DB, pc PoolConfig) {
	if pc.MaxOpen > 0 {
		db.SetMaxOpenConns(pc.MaxOpen)
	}
	if pc.MaxIdle > 0 {
		db.SetMaxIdleConns(pc.MaxIdle)
	}
	if pc.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pc.ConnMaxLifetime)
	}
	if pc.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pc.ConnMaxIdleTime)
	}
}

// GetPool exposes the underlying pool. It is an escape hatch for tests and
// advanced use; connections taken from it bypass bootstrap and cleanup.
func (h *Handle) GetPool() Pool { return h.pool.pool }

// Options returns the resolved options.
func (h *Handle) Options() Options { return h.opts }

// Close stops the health monitor and suspends until the underlying pool is
// drained. The pool is ended exactly once; if ctx ends first Close returns
// ctx's error and a later Close can wait for the same drain again.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.closed.Store(true)
	if h.monitor != nil {
		h.monitor.Stop()
	}
	start := time.Now()
	err := h.pool.end(ctx)
	h.logConnection(ctx, "end", "", time.Since(start), err)
	return err
}
