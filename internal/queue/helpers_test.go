package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/notify"
	"qms/smartqueue-service/internal/store"
	"qms/smartqueue-service/internal/store/memory"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// faultyStore fails the selected operations and delegates the rest.
type faultyStore struct {
	store.DocumentStore
	failGet   bool
	failQuery bool
	failSet   bool
	failInc   bool
	// failHistory fails writes to the history collection only.
	failHistory bool
	failUpdate  bool
	queries     atomic.Int32
}

func (f *faultyStore) Get(ctx context.Context, collection, id string) (store.Document, bool, error) {
	if f.failGet {
		return nil, false, store.Failure(errBoom, "get")
	}
	return f.DocumentStore.Get(ctx, collection, id)
}

func (f *faultyStore) Query(ctx context.Context, collection string, query store.Query) ([]store.Document, error) {
	f.queries.Add(1)
	if f.failQuery {
		return nil, store.Failure(errBoom, "query")
	}
	return f.DocumentStore.Query(ctx, collection, query)
}

func (f *faultyStore) Set(ctx context.Context, collection, id string, doc store.Document, merge bool) error {
	if f.failSet || (f.failHistory && collection == store.CollectionHistory) {
		return store.Failure(errBoom, "set")
	}
	return f.DocumentStore.Set(ctx, collection, id, doc, merge)
}

func (f *faultyStore) Update(ctx context.Context, collection, id string, partial store.Document) error {
	if f.failUpdate {
		return store.Failure(errBoom, "update")
	}
	return f.DocumentStore.Update(ctx, collection, id, partial)
}

func (f *faultyStore) InsertSequenced(ctx context.Context, seq store.Sequence, collection, field string, docs []store.SequencedDocument) (int64, error) {
	if f.failSet || f.failInc {
		return 0, store.Failure(errBoom, "insert sequenced")
	}
	return f.DocumentStore.InsertSequenced(ctx, seq, collection, field, docs)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type recordingMessenger struct {
	mu       sync.Mutex
	booked   []string
	turns    []string
	checkIns []string
	estimate int
}

func (m *recordingMessenger) BookingConfirmation(_ context.Context, entry models.Entry, estimate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.booked = append(m.booked, entry.EntryID)
	m.estimate = estimate
}

func (m *recordingMessenger) TurnNotification(_ context.Context, entry models.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, entry.EntryID)
}

func (m *recordingMessenger) CheckInConfirmation(_ context.Context, entry models.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkIns = append(m.checkIns, entry.EntryID)
}

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func putEntry(t *testing.T, st store.DocumentStore, entry models.Entry) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), store.CollectionEntries, entry.EntryID, entry.Document(), false))
}

func putHistory(t *testing.T, st store.DocumentStore, id string, entry models.Entry) {
	t.Helper()
	record := models.HistoryRecord{RecordID: id, Entry: entry}
	if entry.ServiceEnd != nil {
		record.CompletedAt = *entry.ServiceEnd
	}
	require.NoError(t, st.Set(context.Background(), store.CollectionHistory, id, record.Document(), false))
}

func newTestService(t *testing.T, st store.DocumentStore, now time.Time) (*Service, *recordingNotifier, *recordingMessenger) {
	t.Helper()
	if st == nil {
		st = memory.NewStore()
	}
	notifier := &recordingNotifier{}
	messenger := &recordingMessenger{}
	cfg := DefaultEstimatorConfig()
	cfg.Now = clockAt(now)
	svc := NewService(ServiceConfig{
		Store:     st,
		Estimator: NewEstimator(st, cfg, nil),
		Notifier:  notifier,
		Messenger: messenger,
		Now:       clockAt(now),
	})
	return svc, notifier, messenger
}
