package postgres

import (
	"strings"
	"testing"

	"qms/smartqueue-service/internal/store"
)

func TestBuildQueryBindsFieldsAndValues(t *testing.T) {
	sql, args, err := buildQuery("entries", store.Query{
		Filters: []store.Filter{
			store.Where("location_id", store.OpEq, "branch1"),
			store.Where("created_ms", store.OpLt, int64(1000)),
			store.Where("status", store.OpIn, []string{"waiting", "serving"}),
		},
		OrderBy: &store.Order{Field: "sequence", Descending: true},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sql, "branch1") || strings.Contains(sql, "location_id") {
		t.Fatalf("values must be bound, got %s", sql)
	}
	for _, want := range []string{"= ANY($7::text[])", "ORDER BY data->$8::text DESC", "LIMIT $9", "::numeric END < $5::numeric"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in %s", want, sql)
		}
	}
	if len(args) != 9 {
		t.Fatalf("expected 9 args, got %d", len(args))
	}
	if args[0] != "entries" || args[1] != "location_id" || args[2] != "branch1" {
		t.Fatalf("unexpected leading args: %v", args[:3])
	}
	if got := args[4].(float64); got != 1000 {
		t.Fatalf("expected numeric arg 1000, got %v", got)
	}
}

func TestBuildQueryNullAndNotEqual(t *testing.T) {
	sql, args, err := buildQuery("entries", store.Query{
		Filters: []store.Filter{
			store.Where("seat_id", store.OpEq, nil),
			store.Where("status", store.OpNe, "completed"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "IS NULL OR") || !strings.Contains(sql, "IS DISTINCT FROM $4::text") {
		t.Fatalf("unexpected sql: %s", sql)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
}

func TestBuildQueryRejectsUnknownOperator(t *testing.T) {
	if _, _, err := buildQuery("entries", store.Query{
		Filters: []store.Filter{store.Where("status", store.Op("like"), "w%")},
	}); err == nil {
		t.Fatalf("expected error for unsupported operator")
	}
}
