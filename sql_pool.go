package mysequel

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	defaultStmtCacheSize = 16
	rollbackTimeout      = 5 * time.Second
)

// SQLPool implements Pool and Executor over a *sql.DB. It interprets the
// Options the Handle forwards to it:
//
//   - Retry and RetryCount retry connection acquisition on retryable errors.
//   - Prepared runs every statement as a prepared statement, cached per
//     borrowed connection.
//   - NamedPlaceholders allows map and struct parameter sets.
//   - TransactionAutoRollback rolls back a transaction left open when the
//     connection is released.
//   - TidyStacks off attaches a stack trace to returned errors.
type SQLPool struct {
	db   *sql.DB
	opts Options

	stmtHits   atomic.Uint64
	stmtMisses atomic.Uint64
}

// NewSQLPool wraps db. The caller keeps ownership of db until End.
func NewSQLPool(db *sql.DB, opts Options) *SQLPool {
	return &SQLPool{db: db, opts: opts}
}

// DB returns the underlying *sql.DB.
func (p *SQLPool) DB() *sql.DB { return p.db }

// Options returns the options the pool was built with.
func (p *SQLPool) Options() Options { return p.opts }

// Stats returns database/sql pool statistics.
func (p *SQLPool) Stats() sql.DBStats { return p.db.Stats() }

// StmtCacheStats returns prepared statement cache hits and misses summed
// over every connection returned so far.
func (p *SQLPool) StmtCacheStats() (hits, misses uint64) {
	return p.stmtHits.Load(), p.stmtMisses.Load()
}

// GetConnection borrows a connection from the pool.
func (p *SQLPool) GetConnection(ctx context.Context) (Conn, error) {
	var (
		inner *sql.Conn
		err   error
	)
	if p.opts.Retry {
		inner, err = retryWithPolicy(ctx, DefaultRetryPolicy(p.opts.RetryCount), func() (*sql.Conn, error) {
			return p.db.Conn(ctx)
		}, Classify)
	} else {
		inner, err = p.db.Conn(ctx)
	}
	if err != nil {
		return nil, p.wrap(err)
	}
	return p.newConn(inner), nil
}

// IdleConnections checks out at most as many connections as database/sql
// reports idle at call time. It stops as soon as no connection is idle, so
// it neither dials a new connection nor waits for a busy one to come back.
func (p *SQLPool) IdleConnections(ctx context.Context) []Conn {
	return p.takeIdle(ctx, func() int { return p.db.Stats().Idle }, p.db.Conn)
}

func (p *SQLPool) takeIdle(ctx context.Context, idle func() int, take func(context.Context) (*sql.Conn, error)) []Conn {
	n := idle()
	out := make([]Conn, 0, n)
	for len(out) < n && idle() > 0 {
		inner, err := take(ctx)
		if err != nil {
			break
		}
		out = append(out, p.newConn(inner))
	}
	return out
}

// End closes the underlying *sql.DB, which waits for borrowed connections to
// come back. It returns early with ctx's error if ctx ends first.
func (p *SQLPool) End(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- p.db.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs q on a connection handed out by this pool and scans every
// result row into a Row. Text columns come back as string.
func (p *SQLPool) Execute(ctx context.Context, q Query) (Rows, error) {
	c, ok := q.Conn.(*SQLConn)
	if !ok || c.pool != p {
		return nil, ErrForeignConn
	}
	query, args, err := bindValues(q.SQL, q.Values, p.opts.NamedPlaceholders)
	if err != nil {
		return nil, p.wrap(err)
	}

	var rows *sql.Rows
	if p.opts.Prepared {
		st, _, perr := c.cache.getOrPrepare(ctx, c.inner, query)
		if perr != nil {
			return nil, p.wrap(perr)
		}
		rows, err = st.QueryContext(ctx, args...)
	} else {
		rows, err = c.inner.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, p.wrap(err)
	}
	c.trackTx(query)
	return out, nil
}

func (p *SQLPool) wrap(err error) error {
	if err == nil || p.opts.TidyStacks {
		return err
	}
	return pkgerrors.WithStack(err)
}

func (p *SQLPool) newConn(inner *sql.Conn) *SQLConn {
	c := &SQLConn{pool: p, inner: inner}
	_ = inner.Raw(func(dc any) error {
		c.id = fmt.Sprintf("%T@%p", dc, dc)
		return nil
	})
	if p.opts.Prepared {
		c.cache = newStmtCache(defaultStmtCacheSize)
	}
	return c
}

func scanRows(rows *sql.Rows) (Rows, error) {
	out := Rows{}
	for rows.Next() {
		r := make(Row)
		if err := sqlx.MapScan(rows, r); err != nil {
			return nil, err
		}
		for k, v := range r {
			if b, ok := v.([]byte); ok {
				r[k] = string(b)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SQLConn is a connection borrowed from an SQLPool.
type SQLConn struct {
	pool  *SQLPool
	inner *sql.Conn
	id    string
	cache *stmtCache
	inTx  atomic.Bool
	done  atomic.Bool
}

// ID identifies the physical driver connection.
func (c *SQLConn) ID() string { return c.id }

// Raw exposes the borrowed *sql.Conn.
func (c *SQLConn) Raw() *sql.Conn { return c.inner }

// InTransaction reports whether a transaction opened on this connection is
// still open.
func (c *SQLConn) InTransaction() bool { return c.inTx.Load() }

// Release returns the connection to the pool. A transaction left open is
// rolled back first when TransactionAutoRollback is set; if the rollback
// fails the connection is destroyed instead.
func (c *SQLConn) Release() {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	c.closeCache()
	if c.pool.opts.TransactionAutoRollback && c.inTx.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
		_, err := c.inner.ExecContext(ctx, "ROLLBACK")
		cancel()
		if err != nil {
			c.discard()
			return
		}
		c.inTx.Store(false)
	}
	_ = c.inner.Close()
}

// Destroy closes the physical connection; database/sql opens a new one when
// needed.
func (c *SQLConn) Destroy() {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	c.closeCache()
	c.discard()
}

func (c *SQLConn) discard() {
	// returning ErrBadConn from Raw makes database/sql drop the driver conn
	_ = c.inner.Raw(func(any) error { return driver.ErrBadConn })
	_ = c.inner.Close()
}

func (c *SQLConn) closeCache() {
	if c.cache == nil {
		return
	}
	hits, misses, _ := c.cache.stats()
	c.pool.stmtHits.Add(hits)
	c.pool.stmtMisses.Add(misses)
	c.cache.closeAll()
}

// trackTx follows explicit transaction statements run through Execute.
func (c *SQLConn) trackTx(query string) {
	switch txVerb(query) {
	case "begin":
		c.inTx.Store(true)
	case "end":
		c.inTx.Store(false)
	}
}

func txVerb(query string) string {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(query)))
	if len(fields) == 0 {
		return ""
	}
	first := strings.TrimSuffix(fields[0], ";")
	switch first {
	case "BEGIN":
		return "begin"
	case "START":
		if len(fields) > 1 && strings.HasPrefix(fields[1], "TRANSACTION") {
			return "begin"
		}
	case "COMMIT":
		return "end"
	case "ROLLBACK":
		if len(fields) > 1 && fields[1] == "TO" {
			return ""
		}
		return "end"
	}
	return ""
}

// RegisterStats exports the database/sql pool statistics (open, idle and
// in-use connections, wait counts) to reg under the given db_name label.
func (p *SQLPool) RegisterStats(reg prometheus.Registerer, dbName string) error {
	return reg.Register(collectors.NewDBStatsCollector(p.db, dbName))
}
