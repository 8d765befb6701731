package mysequel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// bootstrap runs the configured statements on a freshly acquired connection,
// one after another in configured order. On the first failure the remaining
// statements are skipped, the connection is destroyed and the statement's
// error is returned as is. On success the connection stays borrowed.
func (h *Handle) bootstrap(ctx context.Context, l *lease) error {
	stmts := h.opts.ConnectionBootstrap
	if len(stmts) == 0 {
		return nil
	}
	ctx, span := h.startSpan(ctx, "bootstrap", "",
		attribute.Int("db.bootstrap.statements", len(stmts)),
		attribute.String("db.connection.id", l.conn.ID()),
	)
	for _, st := range stmts {
		if _, err := h.execute(ctx, "bootstrap", l.conn, st.SQL, st.Values); err != nil {
			l.destroy(ctx)
			h.finishSpan(span, err)
			return err
		}
	}
	h.finishSpan(span, nil)
	return nil
}
