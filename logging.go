package mysequel

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
)

// instrumentation is swapped atomically so that setters never race with the
// health monitor goroutine.
type instrumentation struct {
	loggingEnabled     bool
	logger             *slog.Logger
	slowQueryThreshold time.Duration

	telemetryEnabled bool

	metricsEnabled bool
	meterProvider  metric.MeterProvider
	metrics        *Metrics
}

func (h *Handle) instr() *instrumentation {
	if h == nil {
		return &instrumentation{}
	}
	if in := h.inst.Load(); in != nil {
		return in
	}
	return &instrumentation{}
}

func (h *Handle) updateInstr(fn func(*instrumentation)) {
	for {
		old := h.inst.Load()
		next := &instrumentation{}
		if old != nil {
			*next = *old
		}
		fn(next)
		if h.inst.CompareAndSwap(old, next) {
			return
		}
	}
}

// EnableLogging enables or disables structured logging for this handle.
func (h *Handle) EnableLogging(enabled bool) {
	if h == nil {
		return
	}
	h.updateInstr(func(in *instrumentation) {
		in.loggingEnabled = enabled
		if enabled && in.logger == nil {
			in.logger = defaultLogger
		}
	})
}

// SetLogger sets a custom logger for this handle.
func (h *Handle) SetLogger(logger *slog.Logger) {
	if h == nil {
		return
	}
	h.updateInstr(func(in *instrumentation) { in.logger = logger })
}

// SetSlowQueryThreshold makes queries slower than d log at warn level.
// Zero disables slow query detection.
func (h *Handle) SetSlowQueryThreshold(d time.Duration) {
	if h == nil {
		return
	}
	h.updateInstr(func(in *instrumentation) { in.slowQueryThreshold = d })
}

// logQuery logs one execution of the query primitive.
func (h *Handle) logQuery(ctx context.Context, operation, connID, query string, values any, duration time.Duration, err error) {
	in := h.instr()
	if !in.loggingEnabled || in.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("conn_id", connID),
		slog.String("query", query),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if n := valueCount(values); n > 0 {
		attrs = append(attrs, slog.Int("arg_count", n))
	}

	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		if code, ok := mysqlErrorCode(err); ok {
			attrs = append(attrs, slog.Int("error_code", int(code)))
		}
	} else {
		attrs = append(attrs, slog.String("status", "success"))
	}

	if in.slowQueryThreshold > 0 && duration > in.slowQueryThreshold {
		in.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
		return
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	in.logger.LogAttrs(ctx, level, "database query executed", attrs...)
}

// logConnection logs connection lifecycle events: acquire, release, destroy
// and end.
func (h *Handle) logConnection(ctx context.Context, event, connID string, duration time.Duration, err error) {
	in := h.instr()
	if !in.loggingEnabled || in.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("event", event),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if connID != "" {
		attrs = append(attrs, slog.String("conn_id", connID))
	}

	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		in.logger.LogAttrs(ctx, slog.LevelError, "database connection event", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "success"))
	in.logger.LogAttrs(ctx, slog.LevelDebug, "database connection event", attrs...)
}

// logSweep logs the outcome of one health sweep.
func (h *Handle) logSweep(ctx context.Context, sweepID string, probed int, failures []error, duration time.Duration) {
	in := h.instr()
	if !in.loggingEnabled || in.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("sweep_id", sweepID),
		slog.Int("probed", probed),
		slog.Int("failures", len(failures)),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	level := slog.LevelDebug
	if len(failures) > 0 {
		level = slog.LevelWarn
		msgs := make([]string, len(failures))
		for i, err := range failures {
			msgs[i] = err.Error()
		}
		attrs = append(attrs, slog.Any("errors", msgs))
	}
	in.logger.LogAttrs(ctx, level, "health sweep completed", attrs...)
}

func valueCount(values any) int {
	if values == nil {
		return 0
	}
	v := reflect.ValueOf(values)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len()
	case reflect.Pointer:
		if v.IsNil() {
			return 0
		}
		return 1
	default:
		return 1
	}
}
