package mysequel

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// BorrowLeak carries info about a connection held past the warn threshold.
type BorrowLeak struct {
	ConnID  string
	HeldFor time.Duration
}

// SetBorrowWarnThreshold sets how long a connection may stay borrowed before
// the leak handler fires. Zero disables leak detection.
func (h *Handle) SetBorrowWarnThreshold(d time.Duration) {
	if h == nil {
		return
	}
	h.borrowWarnNS.Store(int64(d))
}

// SetLeakHandler registers fn to be called, from its own goroutine, for every
// connection held past the borrow warn threshold.
func (h *Handle) SetLeakHandler(fn func(BorrowLeak)) {
	if h == nil {
		return
	}
	h.leakMu.Lock()
	h.leakHandler = fn
	h.leakMu.Unlock()
}

// lease tracks one borrowed connection and guarantees that exactly one of
// Release or Destroy reaches it.
type lease struct {
	h        *Handle
	conn     Conn
	acquired time.Time
	timer    *time.Timer
	done     atomic.Bool
}

// acquire borrows a connection through the pool facade.
func (h *Handle) acquire(ctx context.Context) (*lease, error) {
	start := time.Now()
	c, err := h.pool.acquire(ctx)
	if err != nil {
		h.logConnection(ctx, "acquire", "", time.Since(start), err)
		return nil, err
	}
	l := h.adopt(ctx, c)
	h.logConnection(ctx, "acquire", c.ID(), time.Since(start), nil)
	return l, nil
}

// adopt starts tracking a connection the caller already owns.
func (h *Handle) adopt(ctx context.Context, c Conn) *lease {
	l := &lease{h: h, conn: c, acquired: time.Now()}
	if d := time.Duration(h.borrowWarnNS.Load()); d > 0 {
		l.timer = time.AfterFunc(d, l.reportLeak)
	}
	h.recordAcquired(ctx)
	return l
}

func (l *lease) release(ctx context.Context) { l.finish(ctx, false) }

func (l *lease) destroy(ctx context.Context) { l.finish(ctx, true) }

func (l *lease) finish(ctx context.Context, destroy bool) {
	if !l.done.CompareAndSwap(false, true) {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	event := "release"
	if destroy {
		event = "destroy"
		l.conn.Destroy()
	} else {
		l.conn.Release()
	}
	l.h.recordReturned(ctx, destroy)
	l.h.logConnection(ctx, event, l.conn.ID(), time.Since(l.acquired), nil)
}

func (l *lease) reportLeak() {
	if l.done.Load() {
		return
	}
	info := BorrowLeak{ConnID: l.conn.ID(), HeldFor: time.Since(l.acquired)}
	if in := l.h.instr(); in.loggingEnabled && in.logger != nil {
		in.logger.LogAttrs(context.Background(), slog.LevelWarn, "connection held past borrow threshold",
			slog.String("conn_id", info.ConnID),
			slog.Float64("held_ms", float64(info.HeldFor.Nanoseconds())/1e6),
		)
	}
	l.h.leakMu.RLock()
	fn := l.h.leakHandler
	l.h.leakMu.RUnlock()
	if fn != nil {
		fn(info)
	}
}
