// Package queue is the scheduling and prediction core: position ranking,
// wait estimation, density classification, counter and seat allocation,
// the no-show sweeper and the Service that orchestrates booking and the
// entry lifecycle on top of a store.DocumentStore.
package queue

import (
	"context"
	"math"
	"sort"
	"time"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/store"
)

// Recorder receives operational counters. metrics.Collector implements it.
type Recorder interface {
	EntryBooked(locationID, priority string)
	EntryTransitioned(status string)
	EntryNoShow(locationID string)
	SweepFinished(d time.Duration, failed bool)
	WaitEstimated(locationID string, minutes int)
	SeatPoolFull(locationID string)
}

type nopRecorder struct{}

func (nopRecorder) EntryBooked(string, string)        {}
func (nopRecorder) EntryTransitioned(string)          {}
func (nopRecorder) EntryNoShow(string)                {}
func (nopRecorder) SweepFinished(time.Duration, bool) {}
func (nopRecorder) WaitEstimated(string, int)         {}
func (nopRecorder) SeatPoolFull(string)               {}

func queryEntries(ctx context.Context, st store.DocumentStore, filters ...store.Filter) ([]models.Entry, error) {
	docs, err := st.Query(ctx, store.CollectionEntries, store.Query{Filters: filters})
	if err != nil {
		return nil, err
	}
	entries := make([]models.Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, models.EntryFromDocument(doc))
	}
	return entries, nil
}

// waitingEntries returns the waiting entries of one (location, category)
// pair in service order.
func waitingEntries(ctx context.Context, st store.DocumentStore, locationID, categoryID string) ([]models.Entry, error) {
	entries, err := queryEntries(ctx, st,
		store.Where(models.FieldLocationID, store.OpEq, locationID),
		store.Where(models.FieldCategoryID, store.OpEq, categoryID),
		store.Where(models.FieldStatus, store.OpEq, string(models.StatusWaiting)),
	)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func countByStatus(ctx context.Context, st store.DocumentStore, status models.Status, filters ...store.Filter) (int, error) {
	filters = append(filters, store.Where(models.FieldStatus, store.OpEq, string(status)))
	docs, err := st.Query(ctx, store.CollectionEntries, store.Query{Filters: filters})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func sortEntries(entries []models.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return models.Less(entries[i], entries[j])
	})
}

// round matches half-up rounding for the non-negative values used here.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
