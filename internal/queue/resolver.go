package queue

import (
	"context"
	"fmt"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/store"

	"go.uber.org/zap"
)

type PositionState string

const (
	StateQueued     PositionState = "queued"
	StateServing    PositionState = "serving"
	StateNotInQueue PositionState = "not_in_queue"
	StateNotFound   PositionState = "not_found"
	StateError      PositionState = "error"
)

// Position is an entry's place in its (location, category) queue. Rank is
// 1-based while queued, 0 while serving and -1 otherwise.
type Position struct {
	Rank         int           `json:"rank"`
	State        PositionState `json:"state"`
	Message      string        `json:"message"`
	TotalInQueue int           `json:"total_in_queue"`
}

// Resolver ranks waiting entries by priority weight, then sequence number.
// It never fails: store errors degrade to StateError.
type Resolver struct {
	store  store.DocumentStore
	logger *zap.Logger
}

func NewResolver(st store.DocumentStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: st, logger: logger}
}

func (r *Resolver) Position(ctx context.Context, locationID, categoryID, entryID string) Position {
	doc, ok, err := r.store.Get(ctx, store.CollectionEntries, entryID)
	if err != nil {
		return r.failed(err, entryID)
	}
	if !ok {
		return Position{Rank: -1, State: StateNotFound, Message: "Entry not found"}
	}
	entry := models.EntryFromDocument(doc)

	waiting, err := waitingEntries(ctx, r.store, locationID, categoryID)
	if err != nil {
		return r.failed(err, entryID)
	}
	total := len(waiting)
	for i, candidate := range waiting {
		if candidate.EntryID == entryID {
			return Position{
				Rank:         i + 1,
				State:        StateQueued,
				Message:      fmt.Sprintf("You are #%d in queue", i+1),
				TotalInQueue: total,
			}
		}
	}
	if entry.Status == models.StatusServing {
		return Position{Rank: 0, State: StateServing, Message: "You are being served!", TotalInQueue: total}
	}
	return Position{Rank: -1, State: StateNotInQueue, Message: "Entry not in queue", TotalInQueue: total}
}

func (r *Resolver) failed(err error, entryID string) Position {
	r.logger.Warn("position lookup failed", zap.String("entry_id", entryID), zap.Error(err))
	return Position{Rank: -1, State: StateError, Message: "Error calculating position"}
}
