package queue

import (
	"context"
	"testing"
	"time"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/notify"
	"qms/smartqueue-service/internal/store"
	"qms/smartqueue-service/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepMarksOnlyExpiredWaitingEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	st := memory.NewStore()
	seats := NewSeatAllocator(0)

	putEntry(t, st, models.Entry{EntryID: "old", Sequence: 1, LocationID: "loc", Status: models.StatusWaiting, CreatedAt: now.Add(-31 * time.Minute)})
	putEntry(t, st, models.Entry{EntryID: "fresh", Sequence: 2, LocationID: "loc", Status: models.StatusWaiting, CreatedAt: now.Add(-29 * time.Minute)})
	putEntry(t, st, models.Entry{EntryID: "edge", Sequence: 3, LocationID: "loc", Status: models.StatusWaiting, CreatedAt: now.Add(-30 * time.Minute)})
	putEntry(t, st, models.Entry{EntryID: "arrived", Sequence: 4, LocationID: "loc", Status: models.StatusArrived, CreatedAt: now.Add(-2 * time.Hour)})
	_, ok := seats.Assign("loc", "old")
	require.True(t, ok)

	notifier := &recordingNotifier{}
	sweeper := NewSweeper(st, seats, notifier, SweeperConfig{Now: clockAt(now)}, nil)

	marked, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	doc, _, err := st.Get(ctx, store.CollectionEntries, "old")
	require.NoError(t, err)
	old := models.EntryFromDocument(doc)
	assert.Equal(t, models.StatusNoShow, old.Status)
	require.NotNil(t, old.NoShowAt)
	assert.True(t, old.NoShowAt.Equal(now))

	for _, id := range []string{"fresh", "edge"} {
		doc, _, err := st.Get(ctx, store.CollectionEntries, id)
		require.NoError(t, err)
		assert.Equal(t, string(models.StatusWaiting), doc[models.FieldStatus], id)
	}
	doc, _, err = st.Get(ctx, store.CollectionEntries, "arrived")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusArrived), doc[models.FieldStatus])

	assert.False(t, seats.Release("loc", "old"))
	assert.Equal(t, []string{notify.ActionNoShow}, notifier.actions())

	marked, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestSweepReturnsStoreFailure(t *testing.T) {
	st := &faultyStore{DocumentStore: memory.NewStore(), failQuery: true}
	_, err := NewSweeper(st, nil, nil, SweeperConfig{}, nil).Sweep(context.Background())
	require.Error(t, err)
}

func TestRunKeepsTickingAfterFailureAndStopsOnCancel(t *testing.T) {
	st := &faultyStore{DocumentStore: memory.NewStore(), failQuery: true}
	sweeper := NewSweeper(st, nil, nil, SweeperConfig{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return queriesSeen(st) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func queriesSeen(st *faultyStore) int {
	return int(st.queries.Load())
}
