package models

import (
	"math"
	"time"
)

// Counter is a service point eligible for a subset of categories. X and Y
// place it on the floor layout.
type Counter struct {
	CounterID  string   `json:"counter_id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Categories []string `json:"categories" yaml:"categories"`
	X          int      `json:"x" yaml:"x"`
	Y          int      `json:"y" yaml:"y"`
}

func (c Counter) Serves(categoryID string) bool {
	for _, category := range c.Categories {
		if category == categoryID {
			return true
		}
	}
	return false
}

type Seat struct {
	SeatID   string `json:"seat_id"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Occupied bool   `json:"occupied"`
	EntryID  string `json:"entry_id,omitempty"`
}

// HistoryRecord is the immutable snapshot of an entry taken at completion.
type HistoryRecord struct {
	RecordID    string    `json:"record_id"`
	Entry       Entry     `json:"entry"`
	CompletedAt time.Time `json:"completed_at"`
}

// ServiceMinutes is the whole-minute service duration, at least 1. ok is
// false when either service timestamp is missing.
func (h HistoryRecord) ServiceMinutes() (int, bool) {
	start, end := h.Entry.ServiceStart, h.Entry.ServiceEnd
	if start == nil || end == nil {
		return 0, false
	}
	minutes := int(math.Floor(float64(end.Sub(*start).Milliseconds())/60000 + 0.5))
	if minutes < 1 {
		minutes = 1
	}
	return minutes, true
}

func (h HistoryRecord) Document() map[string]interface{} {
	doc := h.Entry.Document()
	doc["record_id"] = h.RecordID
	doc[FieldCompletedMS] = Millis(h.CompletedAt)
	return doc
}

func HistoryFromDocument(doc map[string]interface{}) HistoryRecord {
	return HistoryRecord{
		RecordID:    stringField(doc, "record_id"),
		Entry:       EntryFromDocument(doc),
		CompletedAt: FromMillis(int64Field(doc, FieldCompletedMS)),
	}
}
