package mysequel

import (
	"context"
)

// Conn is a connection borrowed from a Pool. Exactly one of Release or
// Destroy must be called once the borrower is done with it.
type Conn interface {
	// ID identifies the physical connection in logs.
	ID() string
	// Release returns the connection to the pool for reuse.
	Release()
	// Destroy discards the connection; the pool must replace it.
	Destroy()
}

// Pool is the underlying connection pool. It must be safe for concurrent
// GetConnection calls.
type Pool interface {
	// GetConnection suspends until a connection is available or the pool
	// fails.
	GetConnection(ctx context.Context) (Conn, error)
	// IdleConnections hands the connections idle at call time to the caller,
	// who becomes responsible for releasing or destroying each of them.
	IdleConnections(ctx context.Context) []Conn
	// End suspends until every connection is drained and closed.
	End(ctx context.Context) error
}

// Query is one invocation of the execution primitive.
type Query struct {
	Conn   Conn
	SQL    string
	Values any
}

// Executor is the query execution primitive.
type Executor interface {
	Execute(ctx context.Context, q Query) (Rows, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, q Query) (Rows, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, q Query) (Rows, error) { return f(ctx, q) }

// CallbackPool is a pool that reports results through callbacks instead of
// return values. Use FromCallbacks to obtain a Pool.
type CallbackPool interface {
	GetConnection(cb func(Conn, error))
	IdleConnections() []Conn
	End(cb func(error))
}

// FromCallbacks adapts a CallbackPool to Pool. Each call waits for exactly
// one callback; a connection delivered after the caller gave up is released.
func FromCallbacks(cp CallbackPool) Pool {
	return &callbackPool{cp: cp}
}

type callbackPool struct {
	cp CallbackPool
}

type connResult struct {
	conn Conn
	err  error
}

func (p *callbackPool) GetConnection(ctx context.Context) (Conn, error) {
	// buffered so a late callback never blocks the pool
	ch := make(chan connResult, 1)
	p.cp.GetConnection(func(c Conn, err error) {
		ch <- connResult{conn: c, err: err}
	})
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && r.conn != nil {
				r.conn.Release()
			}
		}()
		return nil, ctx.Err()
	}
}

func (p *callbackPool) IdleConnections(context.Context) []Conn {
	return p.cp.IdleConnections()
}

func (p *callbackPool) End(ctx context.Context) error {
	ch := make(chan error, 1)
	p.cp.End(func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Pool     = (*callbackPool)(nil)
	_ Pool     = (*SQLPool)(nil)
	_ Executor = (*SQLPool)(nil)
	_ Conn     = (*SQLConn)(nil)
)
