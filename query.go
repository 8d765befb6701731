package mysequel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Query acquires a connection, bootstraps it when ConnectionBootstrap is
// configured, and runs sql with values on it. The rows produced by the
// executor are returned unchanged and the connection is released. If the
// bootstrap or the query fails the connection is destroyed instead and the
// original error is returned; acquisition errors are returned untouched.
//
// Query enforces no timeout of its own: bound it through ctx.
func (h *Handle) Query(ctx context.Context, sql string, values any) (Rows, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	l, err := h.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.bootstrap(ctx, l); err != nil {
		return nil, err
	}
	rows, err := h.execute(ctx, "query", l.conn, sql, values)
	if err != nil {
		l.destroy(ctx)
		return nil, err
	}
	l.release(ctx)
	return rows, nil
}

// execute runs one call of the execution primitive with tracing, logging and
// metrics around it.
func (h *Handle) execute(ctx context.Context, operation string, c Conn, sql string, values any) (Rows, error) {
	spanCtx, span := h.startSpan(ctx, operation, sql, attribute.String("db.connection.id", c.ID()))
	start := time.Now()
	rows, err := h.exec.Execute(spanCtx, Query{Conn: c, SQL: sql, Values: values})
	duration := time.Since(start)
	h.finishSpan(span, err)
	h.logQuery(ctx, operation, c.ID(), sql, values, duration, err)
	h.recordQuery(ctx, operation, duration, err)
	return rows, err
}
