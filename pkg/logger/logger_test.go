package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_EmitsServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("rentops", "info", &buf)

	l.Info("sweep finished", slog.Int("completed", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rentops", entry["service"])
	assert.Equal(t, "sweep finished", entry["msg"])
	assert.EqualValues(t, 3, entry["completed"])
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("rentops", "warn", &buf)

	l.Info("should be dropped")
	assert.Zero(t, buf.Len())

	l.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNewWithWriter_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("rentops", "nonsense", &buf)

	l.Debug("dropped")
	assert.Zero(t, buf.Len())

	l.Info("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestCorrelationID_RoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-123")
	assert.Equal(t, "corr-123", CorrelationIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestCompanyID_RoundTrip(t *testing.T) {
	ctx := WithCompanyID(context.Background(), "co-9")
	assert.Equal(t, "co-9", CompanyIDFromContext(ctx))
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestWithContext_EnrichesFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter("rentops", "info", &buf)

	ctx := WithCorrelationID(context.Background(), "corr-77")
	ctx = WithCompanyID(ctx, "co-1")

	WithContext(ctx, base).Info("occupancy applied")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corr-77", entry["correlation_id"])
	assert.Equal(t, "co-1", entry["company_id"])
}
