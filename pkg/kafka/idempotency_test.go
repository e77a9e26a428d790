package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func occupancyEvent(t *testing.T, id string) *Event {
	t.Helper()
	event, err := NewEvent("occupancy.applied", "booking-1", "booking", "rentops", map[string]any{
		"item_id":  "item-1",
		"quantity": 4.0,
	})
	require.NoError(t, err)
	if id != "" {
		event.EventID = id
	}
	return event
}

func TestMemoryIdempotencyStore_AddAndContains(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	found, err := store.Contains(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Add(ctx, "ev-1"))

	found, err = store.Contains(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryIdempotencyStore_TTLExpiry(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "ev-1"))
	time.Sleep(5 * time.Millisecond)

	found, err := store.Contains(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotentHandler(store, func(ctx context.Context, event *Event) error {
		calls++
		return nil
	}, discardLogger())

	event := occupancyEvent(t, "ev-dup")
	require.NoError(t, handler(context.Background(), event))
	require.NoError(t, handler(context.Background(), event))

	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_FailedProcessingNotRecorded(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotentHandler(store, func(ctx context.Context, event *Event) error {
		calls++
		if calls == 1 {
			return errors.New("transient failure")
		}
		return nil
	}, discardLogger())

	event := occupancyEvent(t, "ev-retry")
	require.Error(t, handler(context.Background(), event))
	require.NoError(t, handler(context.Background(), event))

	assert.Equal(t, 2, calls)
}

func TestIdempotentHandler_NoEventIDPassesThrough(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotentHandler(store, func(ctx context.Context, event *Event) error {
		calls++
		return nil
	}, discardLogger())

	event := occupancyEvent(t, "")
	event.EventID = ""
	require.NoError(t, handler(context.Background(), event))
	require.NoError(t, handler(context.Background(), event))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.Len())
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "rentops.occupancy.applied", Topic("occupancy", "applied"))
}

func TestEvent_DataRoundTrip(t *testing.T) {
	event := occupancyEvent(t, "ev-1").WithCorrelationID("corr-9").WithMetadata("company_id", "co-1")

	raw, err := event.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "occupancy.applied", decoded.EventType)
	assert.Equal(t, "corr-9", decoded.CorrelationID)
	assert.Equal(t, "co-1", decoded.Metadata["company_id"])

	var payload map[string]any
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, "item-1", payload["item_id"])
}
