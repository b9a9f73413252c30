// Package notify carries queue events to observers. The queue core only
// sees the Notifier interface; Hub, RedisPublisher and Multi are the
// transports wired in main.
package notify

import (
	"context"
	"time"

	"qms/smartqueue-service/internal/models"
)

const (
	ActionBooked        = "entry.booked"
	ActionStatusUpdated = "entry.status_updated"
	ActionCancelled     = "entry.cancelled"
	ActionNoShow        = "entry.no_show"
	ActionCheckedIn     = "entry.checked_in"
	ActionGroupBooked   = "group.booked"
)

type Event struct {
	Action     string        `json:"action"`
	LocationID string        `json:"location_id"`
	EntryID    string        `json:"entry_id"`
	Status     models.Status `json:"status,omitempty"`
	Message    string        `json:"message"`
	Entry      *models.Entry `json:"entry,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Notifier is fire-and-forget: implementations must not block the caller
// on slow observers and report nothing back.
type Notifier interface {
	Notify(ctx context.Context, locationID string, event Event)
}

type Multi []Notifier

func (m Multi) Notify(ctx context.Context, locationID string, event Event) {
	for _, n := range m {
		n.Notify(ctx, locationID, event)
	}
}

type Nop struct{}

func (Nop) Notify(context.Context, string, Event) {}

// Channel names the pub/sub topic observers of a location subscribe to.
func Channel(locationID string) string {
	return "branch-" + locationID
}
