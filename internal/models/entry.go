package models

import "time"

// Entry is one requester's place in a location's queue.
type Entry struct {
	EntryID      string     `json:"entry_id"`
	Sequence     int64      `json:"sequence"`
	LocationID   string     `json:"location_id"`
	CategoryID   string     `json:"category_id"`
	Name         string     `json:"name"`
	Contact      string     `json:"contact,omitempty"`
	Priority     Priority   `json:"priority"`
	Status       Status     `json:"status"`
	CounterID    string     `json:"counter_id,omitempty"`
	CounterName  string     `json:"counter_name,omitempty"`
	SeatID       *string    `json:"seat_id"`
	GroupID      string     `json:"group_id,omitempty"`
	GroupIndex   int        `json:"group_index,omitempty"`
	GroupSize    int        `json:"group_size,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ArrivedAt    *time.Time `json:"arrived_at,omitempty"`
	ServiceStart *time.Time `json:"service_start,omitempty"`
	ServiceEnd   *time.Time `json:"service_end,omitempty"`
	NoShowAt     *time.Time `json:"no_show_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusArrived   Status = "arrived"
	StatusServing   Status = "serving"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
)

func ParseStatus(value string) (Status, bool) {
	switch s := Status(value); s {
	case StatusWaiting, StatusArrived, StatusServing, StatusCompleted, StatusCancelled, StatusNoShow:
		return s, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PrioritySenior    Priority = "senior"
	PriorityNormal    Priority = "normal"
)

// ParsePriority maps unknown or empty values to PriorityNormal.
func ParsePriority(value string) Priority {
	switch p := Priority(value); p {
	case PriorityEmergency, PrioritySenior:
		return p
	}
	return PriorityNormal
}

// Weight orders priorities; lower is served first.
func (p Priority) Weight() int {
	switch p {
	case PriorityEmergency:
		return 0
	case PrioritySenior:
		return 1
	default:
		return 2
	}
}

// Less orders entries by priority weight, then by sequence number.
func Less(a, b Entry) bool {
	if wa, wb := a.Priority.Weight(), b.Priority.Weight(); wa != wb {
		return wa < wb
	}
	return a.Sequence < b.Sequence
}
