package mysequel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type fakeConn struct {
	id        string
	released  atomic.Int32
	destroyed atomic.Int32
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) Release()   { c.released.Add(1) }
func (c *fakeConn) Destroy()   { c.destroyed.Add(1) }

func (c *fakeConn) returns() int32 { return c.released.Load() + c.destroyed.Load() }

// fakePool hands out a new fakeConn per GetConnection and records them.
type fakePool struct {
	mu     sync.Mutex
	handed []*fakeConn
	getErr error
	idle   func() []Conn
	ends   atomic.Int32
	endErr error
	// drained, when set, blocks End until it is closed
	drained chan struct{}
}

func (p *fakePool) GetConnection(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	c := newFakeConn(fmt.Sprintf("conn-%d", len(p.handed)+1))
	p.handed = append(p.handed, c)
	return c, nil
}

func (p *fakePool) IdleConnections(context.Context) []Conn {
	if p.idle == nil {
		return nil
	}
	return p.idle()
}

func (p *fakePool) End(ctx context.Context) error {
	p.ends.Add(1)
	if p.drained != nil {
		select {
		case <-p.drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.endErr
}

func (p *fakePool) conns() []*fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeConn(nil), p.handed...)
}

// recordingExec records every call and answers through fn.
type recordingExec struct {
	mu    sync.Mutex
	calls []Query
	fn    func(q Query) (Rows, error)
}

func (e *recordingExec) Execute(_ context.Context, q Query) (Rows, error) {
	e.mu.Lock()
	e.calls = append(e.calls, q)
	e.mu.Unlock()
	if e.fn == nil {
		return Rows{}, nil
	}
	return e.fn(q)
}

func (e *recordingExec) sqls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, q := range e.calls {
		out[i] = q.SQL
	}
	return out
}

func (e *recordingExec) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// noPing resolves the defaults with sweeps disabled.
func noPing(o Overrides) Options {
	return Resolve(DefaultOptions(), o)
}
