package queue

import (
	"context"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
)

// DefaultLayoutKey names the layout used for locations without their own.
const DefaultLayoutKey = "default"

var allCategories = []string{"consultation", "checkup", "processing", "payment", "registration"}

// DefaultLayouts is the built-in counter table, keyed by location id.
func DefaultLayouts() map[string][]models.Counter {
	return map[string][]models.Counter{
		"branch1": {
			{CounterID: "C1", Name: "Counter 1", Categories: []string{"consultation", "checkup"}, X: 120, Y: 50},
			{CounterID: "C2", Name: "Counter 2", Categories: []string{"consultation", "processing"}, X: 280, Y: 50},
			{CounterID: "C3", Name: "Counter 3", Categories: []string{"payment", "registration"}, X: 440, Y: 50},
			{CounterID: "C4", Name: "Counter 4", Categories: []string{"checkup", "payment"}, X: 600, Y: 50},
		},
		"branch2": {
			{CounterID: "C1", Name: "Counter 1", Categories: []string{"consultation", "checkup"}, X: 120, Y: 50},
			{CounterID: "C2", Name: "Counter 2", Categories: []string{"processing", "payment"}, X: 280, Y: 50},
			{CounterID: "C3", Name: "Counter 3", Categories: []string{"registration", "consultation"}, X: 440, Y: 50},
		},
		DefaultLayoutKey: {
			{CounterID: "C1", Name: "Counter 1", Categories: allCategories, X: 200, Y: 50},
			{CounterID: "C2", Name: "Counter 2", Categories: allCategories, X: 400, Y: 50},
		},
	}
}

// CounterAllocator picks the least loaded eligible counter. Load is the
// number of entries currently serving at each counter; it only reads.
type CounterAllocator struct {
	store   store.DocumentStore
	layouts map[string][]models.Counter
}

// NewCounterAllocator uses DefaultLayouts when layouts is empty. A layout
// set without a DefaultLayoutKey entry inherits the built-in default pair.
func NewCounterAllocator(st store.DocumentStore, layouts map[string][]models.Counter) *CounterAllocator {
	builtin := DefaultLayouts()
	if len(layouts) == 0 {
		return &CounterAllocator{store: st, layouts: builtin}
	}
	merged := make(map[string][]models.Counter, len(layouts)+1)
	for locationID, counters := range layouts {
		merged[locationID] = counters
	}
	if _, ok := merged[DefaultLayoutKey]; !ok {
		merged[DefaultLayoutKey] = builtin[DefaultLayoutKey]
	}
	return &CounterAllocator{store: st, layouts: merged}
}

// Counters returns the layout of a location in definition order.
func (a *CounterAllocator) Counters(locationID string) []models.Counter {
	counters, ok := a.layouts[locationID]
	if !ok {
		counters = a.layouts[DefaultLayoutKey]
	}
	out := make([]models.Counter, len(counters))
	copy(out, counters)
	return out
}

func (a *CounterAllocator) Allocate(ctx context.Context, locationID, categoryID string) (models.Counter, error) {
	counters := a.Counters(locationID)
	if len(counters) == 0 {
		return models.Counter{}, errors.Wrapf(store.ErrInvalidInput, "no counters configured for %s", locationID)
	}

	var eligible []models.Counter
	for _, counter := range counters {
		if counter.Serves(categoryID) {
			eligible = append(eligible, counter)
		}
	}
	if len(eligible) == 0 {
		return counters[0], nil
	}

	load, err := a.load(ctx, locationID)
	if err != nil {
		return models.Counter{}, err
	}

	best := eligible[0]
	for _, counter := range eligible[1:] {
		if load[counter.CounterID] < load[best.CounterID] {
			best = counter
		}
	}
	return best, nil
}

const (
	CounterBusy      = "busy"
	CounterAvailable = "available"
)

// CounterStatus is a counter of the layout with its live load.
type CounterStatus struct {
	models.Counter
	CurrentlyServing int    `json:"currently_serving"`
	Status           string `json:"status"`
}

// Status reports every counter of the location in definition order with
// the number of entries it is serving now.
func (a *CounterAllocator) Status(ctx context.Context, locationID string) ([]CounterStatus, error) {
	load, err := a.load(ctx, locationID)
	if err != nil {
		return nil, err
	}
	counters := a.Counters(locationID)
	out := make([]CounterStatus, 0, len(counters))
	for _, counter := range counters {
		status := CounterStatus{Counter: counter, CurrentlyServing: load[counter.CounterID], Status: CounterAvailable}
		if status.CurrentlyServing > 0 {
			status.Status = CounterBusy
		}
		out = append(out, status)
	}
	return out, nil
}

// Categories lists the categories served at a location, in the order they
// first appear in its layout.
func (a *CounterAllocator) Categories(locationID string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, counter := range a.Counters(locationID) {
		for _, category := range counter.Categories {
			if !seen[category] {
				seen[category] = true
				out = append(out, category)
			}
		}
	}
	return out
}

func (a *CounterAllocator) load(ctx context.Context, locationID string) (map[string]int, error) {
	serving, err := queryEntries(ctx, a.store,
		store.Where(models.FieldLocationID, store.OpEq, locationID),
		store.Where(models.FieldStatus, store.OpEq, string(models.StatusServing)),
	)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "counter load for %s", locationID), store.ErrStoreFailure)
	}
	load := make(map[string]int)
	for _, entry := range serving {
		load[entry.CounterID]++
	}
	return load, nil
}
