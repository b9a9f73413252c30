package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Document field names shared by the store drivers and the queue core.
// Timestamps are stored as Unix milliseconds so range filters and ordering
// compare numbers in every driver.
const (
	FieldEntryID        = "entry_id"
	FieldSequence       = "sequence"
	FieldLocationID     = "location_id"
	FieldCategoryID     = "category_id"
	FieldName           = "name"
	FieldContact        = "contact"
	FieldPriority       = "priority"
	FieldStatus         = "status"
	FieldCounterID      = "counter_id"
	FieldCounterName    = "counter_name"
	FieldSeatID         = "seat_id"
	FieldGroupID        = "group_id"
	FieldGroupIndex     = "group_index"
	FieldGroupSize      = "group_size"
	FieldCreatedMS      = "created_ms"
	FieldArrivedMS      = "arrived_ms"
	FieldServiceStartMS = "service_start_ms"
	FieldServiceEndMS   = "service_end_ms"
	FieldNoShowMS       = "no_show_ms"
	FieldCancelledMS    = "cancelled_ms"
	FieldCompletedMS    = "completed_ms"
	FieldLastSequence   = "last_sequence"
)

// Document renders the entry as a flat store document.
func (e Entry) Document() map[string]interface{} {
	doc := map[string]interface{}{
		FieldEntryID:     e.EntryID,
		FieldSequence:    e.Sequence,
		FieldLocationID:  e.LocationID,
		FieldCategoryID:  e.CategoryID,
		FieldName:        e.Name,
		FieldContact:     e.Contact,
		FieldPriority:    string(e.Priority),
		FieldStatus:      string(e.Status),
		FieldCounterID:   e.CounterID,
		FieldCounterName: e.CounterName,
		FieldCreatedMS:   Millis(e.CreatedAt),
	}
	if e.SeatID != nil {
		doc[FieldSeatID] = *e.SeatID
	} else {
		doc[FieldSeatID] = nil
	}
	if e.GroupID != "" {
		doc[FieldGroupID] = e.GroupID
		doc[FieldGroupIndex] = e.GroupIndex
		doc[FieldGroupSize] = e.GroupSize
	}
	putTime(doc, FieldArrivedMS, e.ArrivedAt)
	putTime(doc, FieldServiceStartMS, e.ServiceStart)
	putTime(doc, FieldServiceEndMS, e.ServiceEnd)
	putTime(doc, FieldNoShowMS, e.NoShowAt)
	putTime(doc, FieldCancelledMS, e.CancelledAt)
	return doc
}

// EntryFromDocument is the inverse of Entry.Document. Missing fields stay
// at their zero value.
func EntryFromDocument(doc map[string]interface{}) Entry {
	entry := Entry{
		EntryID:     stringField(doc, FieldEntryID),
		Sequence:    int64Field(doc, FieldSequence),
		LocationID:  stringField(doc, FieldLocationID),
		CategoryID:  stringField(doc, FieldCategoryID),
		Name:        stringField(doc, FieldName),
		Contact:     stringField(doc, FieldContact),
		Priority:    ParsePriority(stringField(doc, FieldPriority)),
		Status:      Status(stringField(doc, FieldStatus)),
		CounterID:   stringField(doc, FieldCounterID),
		CounterName: stringField(doc, FieldCounterName),
		GroupID:     stringField(doc, FieldGroupID),
		GroupIndex:  int(int64Field(doc, FieldGroupIndex)),
		GroupSize:   int(int64Field(doc, FieldGroupSize)),
		CreatedAt:   FromMillis(int64Field(doc, FieldCreatedMS)),
	}
	if seat := stringField(doc, FieldSeatID); seat != "" {
		entry.SeatID = &seat
	}
	entry.ArrivedAt = timeField(doc, FieldArrivedMS)
	entry.ServiceStart = timeField(doc, FieldServiceStartMS)
	entry.ServiceEnd = timeField(doc, FieldServiceEndMS)
	entry.NoShowAt = timeField(doc, FieldNoShowMS)
	entry.CancelledAt = timeField(doc, FieldCancelledMS)
	return entry
}

func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Int64Value normalizes the numeric shapes drivers hand back (native ints,
// JSON float64, json.Number, numeric strings).
func Int64Value(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return int64(math.Round(float64(v))), true
	case float64:
		return int64(math.Round(v)), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(math.Round(f)), true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func putTime(doc map[string]interface{}, key string, t *time.Time) {
	if t == nil {
		return
	}
	doc[key] = Millis(*t)
}

func stringField(doc map[string]interface{}, key string) string {
	if value, ok := doc[key].(string); ok {
		return value
	}
	return ""
}

func int64Field(doc map[string]interface{}, key string) int64 {
	n, _ := Int64Value(doc[key])
	return n
}

func timeField(doc map[string]interface{}, key string) *time.Time {
	n, ok := Int64Value(doc[key])
	if !ok || n == 0 {
		return nil
	}
	t := FromMillis(n)
	return &t
}
