package pubsub

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reportwatch/internal/watch"
)

func alert(id string, receivedAt time.Time) watch.AlertMessage {
	return watch.AlertMessage{ID: id, ReceivedAt: receivedAt, RawBody: "body " + id}
}

func TestCollectorAcceptsUpToLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	col := newCollector(2, time.Time{})

	require.Equal(t, captureAccept, col.capture(alert("m1", now)))
	require.False(t, col.full())
	require.Equal(t, captureAccept, col.capture(alert("m2", now)))
	require.True(t, col.full())

	batch := col.batch()
	require.Len(t, batch, 2)
	require.Equal(t, "m1", batch[0].ID)
	require.Equal(t, "m2", batch[1].ID)
}

func TestCollectorOverflowIsNotConsumed(t *testing.T) {
	// Messages past the limit must report overflow so the caller nacks
	// them; an acked-then-discarded message would never redeliver and the
	// alert would be lost before reaching the ingestion ledger.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	col := newCollector(1, time.Time{})

	require.Equal(t, captureAccept, col.capture(alert("m1", now)))
	require.Equal(t, captureOverflow, col.capture(alert("m2", now)))
	require.Equal(t, captureOverflow, col.capture(alert("m3", now)))

	batch := col.batch()
	require.Len(t, batch, 1)
	require.Equal(t, "m1", batch[0].ID)
}

func TestCollectorDropsMessagesBeforeSince(t *testing.T) {
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	col := newCollector(10, since)

	require.Equal(t, captureDropOld, col.capture(alert("old", since.Add(-time.Hour))))
	require.Equal(t, captureAccept, col.capture(alert("new", since.Add(time.Hour))))
	require.Equal(t, captureAccept, col.capture(alert("boundary", since)))

	batch := col.batch()
	require.Len(t, batch, 2)
}

func TestCollectorOldMessagesDoNotFillTheBatch(t *testing.T) {
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	col := newCollector(2, since)

	for i := 0; i < 5; i++ {
		require.Equal(t, captureDropOld, col.capture(alert(fmt.Sprintf("old-%d", i), since.Add(-time.Minute))))
	}
	require.Equal(t, captureAccept, col.capture(alert("new-1", since.Add(time.Minute))))
	require.Equal(t, captureAccept, col.capture(alert("new-2", since.Add(time.Minute))))
	require.Equal(t, captureOverflow, col.capture(alert("new-3", since.Add(time.Minute))))
}
