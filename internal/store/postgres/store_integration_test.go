package postgres

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestIncrementConcurrency(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	locationID := uuid.NewString()
	const workers = 20

	var wg sync.WaitGroup
	results := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := st.Increment(ctx, store.CollectionLocations, locationID, "last_sequence", 1)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			results <- next
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for n := range results {
		if seen[n] {
			t.Fatalf("duplicate sequence %d", n)
		}
		seen[n] = true
	}
	for i := int64(1); i <= workers; i++ {
		if !seen[i] {
			t.Fatalf("missing sequence %d", i)
		}
	}
}

func TestInsertSequencedIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	seq := store.Sequence{Collection: store.CollectionLocations, ID: uuid.NewString(), Field: "last_sequence"}
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	docs := make([]store.SequencedDocument, len(ids))
	for i, id := range ids {
		docs[i] = store.SequencedDocument{ID: id, Doc: store.Document{"status": "waiting"}}
	}
	first, err := st.InsertSequenced(ctx, seq, store.CollectionEntries, "sequence", docs)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first sequence 1, got %d", first)
	}
	for i, id := range ids {
		doc, ok, err := st.Get(ctx, store.CollectionEntries, id)
		if err != nil || !ok {
			t.Fatalf("get %s: ok=%v err=%v", id, ok, err)
		}
		if doc["sequence"] != float64(i+1) || doc["status"] != "waiting" {
			t.Fatalf("unexpected doc %d: %v", i, doc)
		}
	}

	bad := []store.SequencedDocument{
		{ID: uuid.NewString(), Doc: store.Document{}},
		{ID: "bad\x00id", Doc: store.Document{}},
	}
	if _, err := st.InsertSequenced(ctx, seq, store.CollectionEntries, "sequence", bad); !errors.Is(err, store.ErrStoreFailure) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if _, ok, _ := st.Get(ctx, store.CollectionEntries, bad[0].ID); ok {
		t.Fatal("expected rolled back insert")
	}
	counter, _, err := st.Get(ctx, seq.Collection, seq.ID)
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if counter["last_sequence"] != float64(3) {
		t.Fatalf("expected counter to stay at 3, got %v", counter["last_sequence"])
	}
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	for i, status := range []string{"waiting", "serving", "waiting", "completed"} {
		id := uuid.NewString()
		if err := st.Set(ctx, store.CollectionEntries, id, store.Document{
			"location_id": "branch1",
			"status":      status,
			"sequence":    int64(i + 1),
			"seat_id":     nil,
		}, false); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	docs, err := st.Query(ctx, store.CollectionEntries, store.Query{
		Filters: []store.Filter{
			store.Where("location_id", store.OpEq, "branch1"),
			store.Where("status", store.OpIn, []string{"waiting", "serving"}),
		},
		OrderBy: &store.Order{Field: "sequence", Descending: true},
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0]["sequence"].(float64) != 3 || docs[1]["sequence"].(float64) != 2 {
		t.Fatalf("unexpected order: %v", docs)
	}

	docs, err = st.Query(ctx, store.CollectionEntries, store.Query{
		Filters: []store.Filter{store.Where("sequence", store.OpGte, 2), store.Where("status", store.OpNe, "completed")},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
}

func TestSetMergeAndUpdate(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	id := uuid.NewString()
	if err := st.Set(ctx, store.CollectionEntries, id, store.Document{"status": "waiting", "name": "Asha"}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.Set(ctx, store.CollectionEntries, id, store.Document{"status": "arrived"}, true); err != nil {
		t.Fatalf("merge: %v", err)
	}
	doc, ok, err := st.Get(ctx, store.CollectionEntries, id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if doc["status"] != "arrived" || doc["name"] != "Asha" {
		t.Fatalf("unexpected merged doc: %v", doc)
	}

	err = st.Update(ctx, store.CollectionEntries, uuid.NewString(), store.Document{"status": "serving"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.Delete(ctx, store.CollectionEntries, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := st.Get(ctx, store.CollectionEntries, id); err != nil || ok {
		t.Fatalf("expected deleted doc, ok=%v err=%v", ok, err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	st := NewStore(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}
