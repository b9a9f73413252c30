package models

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLessOrdersByWeightThenSequence(t *testing.T) {
	entries := []Entry{
		{EntryID: "n5", Priority: PriorityNormal, Sequence: 5},
		{EntryID: "e9", Priority: PriorityEmergency, Sequence: 9},
		{EntryID: "s2", Priority: PrioritySenior, Sequence: 2},
		{EntryID: "n1", Priority: PriorityNormal, Sequence: 1},
		{EntryID: "e3", Priority: PriorityEmergency, Sequence: 3},
	}
	sort.Slice(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.EntryID)
	}
	assert.Equal(t, []string{"e3", "e9", "s2", "n1", "n5"}, ids)
}

func TestParsePriorityAndStatus(t *testing.T) {
	assert.Equal(t, PriorityEmergency, ParsePriority("emergency"))
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityNormal, ParsePriority("vip"))

	s, ok := ParseStatus("no-show")
	require.True(t, ok)
	assert.True(t, s.Terminal())
	_, ok = ParseStatus("noshow")
	assert.False(t, ok)
	assert.False(t, StatusServing.Terminal())
}

func TestEntryDocumentRoundTripThroughJSON(t *testing.T) {
	created := time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC)
	arrived := created.Add(5 * time.Minute)
	seat := "S4"
	entry := Entry{
		EntryID:    "e1",
		Sequence:   12,
		LocationID: "branch1",
		CategoryID: "payment",
		Name:       "Ravi",
		Priority:   PrioritySenior,
		Status:     StatusArrived,
		CounterID:  "C3",
		SeatID:     &seat,
		GroupID:    "g1",
		GroupIndex: 2,
		GroupSize:  3,
		CreatedAt:  created,
		ArrivedAt:  &arrived,
	}

	// Drivers that go through JSON hand numbers back as float64.
	raw, err := json.Marshal(entry.Document())
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	got := EntryFromDocument(doc)
	assert.Equal(t, entry, got)
	assert.Nil(t, got.ServiceStart)
}

func TestEntryDocumentNullSeat(t *testing.T) {
	doc := Entry{EntryID: "e1"}.Document()
	assert.NotContains(t, doc, FieldGroupID)
	assert.Contains(t, doc, FieldSeatID)
	assert.Nil(t, doc[FieldSeatID])
	assert.Nil(t, EntryFromDocument(doc).SeatID)
}

func TestInt64Value(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{int(3), 3, true},
		{int64(4), 4, true},
		{float64(5), 5, true},
		{json.Number("6"), 6, true},
		{"7", 7, true},
		{"x", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Int64Value(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestServiceMinutes(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := start.Add(d)
		return &v
	}
	tests := []struct {
		name string
		end  *time.Time
		want int
		ok   bool
	}{
		{"missing end", nil, 0, false},
		{"floor of one", at(10 * time.Second), 1, true},
		{"rounds half up", at(4*time.Minute + 30*time.Second), 5, true},
		{"rounds down", at(4*time.Minute + 29*time.Second), 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := HistoryRecord{Entry: Entry{ServiceStart: &start, ServiceEnd: tt.end}}
			got, ok := record.ServiceMinutes()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistoryDocument(t *testing.T) {
	completed := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	record := HistoryRecord{RecordID: "h1", Entry: Entry{EntryID: "e1", Status: StatusCompleted}, CompletedAt: completed}

	got := HistoryFromDocument(record.Document())
	assert.Equal(t, "h1", got.RecordID)
	assert.Equal(t, "e1", got.Entry.EntryID)
	assert.True(t, got.CompletedAt.Equal(completed))
}
