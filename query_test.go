package mysequel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_ReturnsRowsAndReleases(t *testing.T) {
	pool := &fakePool{}
	exec := &recordingExec{fn: func(Query) (Rows, error) {
		return Rows{{"columnA": 1}}, nil
	}}
	h := New(pool, exec, noPing(Overrides{}))

	rows, err := h.Query(context.Background(), "SELECT 1 AS columnA", nil)
	require.NoError(t, err)
	assert.Equal(t, Rows{{"columnA": 1}}, rows)

	conns := pool.conns()
	require.Len(t, conns, 1)
	assert.EqualValues(t, 1, conns[0].released.Load())
	assert.EqualValues(t, 0, conns[0].destroyed.Load())
}

func TestQuery_PassesStatementThrough(t *testing.T) {
	pool := &fakePool{}
	exec := &recordingExec{}
	h := New(pool, exec, noPing(Overrides{}))

	values := []any{7, "x"}
	_, err := h.Query(context.Background(), "SELECT * FROM t WHERE a = ? AND b = ?", values)
	require.NoError(t, err)

	require.Equal(t, 1, exec.count())
	q := exec.calls[0]
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", q.SQL)
	assert.Equal(t, values, q.Values)
	assert.Same(t, pool.conns()[0], q.Conn)
}

func TestQuery_FailureDestroysAndReturnsOriginalError(t *testing.T) {
	boom := errors.New("I HURT MYSELF")
	pool := &fakePool{}
	exec := &recordingExec{fn: func(Query) (Rows, error) { return nil, boom }}
	h := New(pool, exec, noPing(Overrides{}))

	rows, err := h.Query(context.Background(), "SELECT 1", nil)
	assert.Nil(t, rows)
	assert.Same(t, boom, err)

	c := pool.conns()[0]
	assert.EqualValues(t, 1, c.destroyed.Load())
	assert.EqualValues(t, 0, c.released.Load())
}

func TestQuery_AcquireErrorUntouched(t *testing.T) {
	refused := errors.New("connect ECONNREFUSED")
	pool := &fakePool{getErr: refused}
	exec := &recordingExec{}
	h := New(pool, exec, noPing(Overrides{}))

	_, err := h.Query(context.Background(), "SELECT 1", nil)
	assert.Same(t, refused, err)
	assert.Zero(t, exec.count())
}

func TestQuery_CanceledContext(t *testing.T) {
	h := New(&fakePool{}, &recordingExec{}, noPing(Overrides{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Query(ctx, "SELECT 1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery_ConcurrentCallsReturnEachConnOnce(t *testing.T) {
	pool := &fakePool{}
	var n int
	var mu sync.Mutex
	exec := &recordingExec{fn: func(Query) (Rows, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n%3 == 0 {
			return nil, errors.New("every third fails")
		}
		return Rows{}, nil
	}}
	h := New(pool, exec, noPing(Overrides{}))

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Query(context.Background(), "SELECT 1", nil)
		}()
	}
	wg.Wait()

	conns := pool.conns()
	require.Len(t, conns, 30)
	var destroyed int32
	for _, c := range conns {
		assert.EqualValues(t, 1, c.returns(), "conn %s", c.id)
		destroyed += c.destroyed.Load()
	}
	assert.EqualValues(t, 10, destroyed)
}

func TestQuery_AfterClose(t *testing.T) {
	pool := &fakePool{}
	h := New(pool, &recordingExec{}, noPing(Overrides{}))
	require.NoError(t, h.Close(context.Background()))

	_, err := h.Query(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, pool.conns())
}
