package mysequel

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapHandler bridges slog records to a *zap.Logger.
type zapHandler struct {
	z      *zap.Logger
	prefix string
	attrs  []zap.Field
}

func newZapHandler(z *zap.Logger) slog.Handler {
	return &zapHandler{z: z}
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func (h *zapHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.z.Core().Enabled(zapLevel(l))
}

func (h *zapHandler) Handle(_ context.Context, r slog.Record) error {
	ce := h.z.Check(zapLevel(r.Level), r.Message)
	if ce == nil {
		return nil
	}
	fields := make([]zap.Field, 0, len(h.attrs)+r.NumAttrs())
	fields = append(fields, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.field(a))
		return true
	})
	ce.Write(fields...)
	return nil
}

func (h *zapHandler) field(a slog.Attr) zap.Field {
	key := a.Key
	if h.prefix != "" {
		key = h.prefix + "." + key
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return zap.String(key, v.String())
	case slog.KindInt64:
		return zap.Int64(key, v.Int64())
	case slog.KindFloat64:
		return zap.Float64(key, v.Float64())
	case slog.KindBool:
		return zap.Bool(key, v.Bool())
	case slog.KindDuration:
		return zap.Duration(key, v.Duration())
	default:
		return zap.Any(key, v.Any())
	}
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append([]zap.Field(nil), h.attrs...)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, h.field(a))
	}
	return &nh
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if nh.prefix == "" {
		nh.prefix = name
	} else {
		nh.prefix = nh.prefix + "." + name
	}
	return &nh
}

// UseZapLogger routes this handle's logs to z and enables logging.
func (h *Handle) UseZapLogger(z *zap.Logger) {
	if h == nil || z == nil {
		return
	}
	logger := slog.New(newZapHandler(z))
	h.updateInstr(func(in *instrumentation) {
		in.logger = logger
		in.loggingEnabled = true
	})
}
