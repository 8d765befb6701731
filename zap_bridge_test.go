package mysequel

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapBridge_ForwardsQueryLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := New(&fakePool{}, &recordingExec{}, noPing(Overrides{}))
	h.UseZapLogger(zap.New(core))

	_, err := h.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)

	queries := logs.FilterMessage("database query executed").All()
	require.Len(t, queries, 1)
	entry := queries[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "SELECT 1", fields["query"])
	assert.Equal(t, "conn-1", fields["conn_id"])
	assert.Equal(t, "success", fields["status"])

	assert.Equal(t, 2, logs.FilterMessage("database connection event").Len())
}

func TestZapBridge_LevelsAndGroups(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := slog.New(newZapHandler(zap.New(core)))

	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("dropped")
	logger.With("pool", "primary").WithGroup("sweep").Warn("slow", "took", 2*time.Second, "n", 3)
	logger.Error("broken", "ok", false)

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, zapcore.WarnLevel, all[0].Level)
	fields := all[0].ContextMap()
	assert.Equal(t, "primary", fields["pool"])
	assert.Equal(t, 2*time.Second, fields["sweep.took"])
	assert.EqualValues(t, 3, fields["sweep.n"])
	assert.Equal(t, zapcore.ErrorLevel, all[1].Level)
	assert.Equal(t, false, all[1].ContextMap()["ok"])
}
