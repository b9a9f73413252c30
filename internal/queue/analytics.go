package queue

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Opening hours covered by the hourly breakdown.
const (
	analyticsFirstHour = 8
	analyticsLastHour  = 18
)

// Analytics summarizes a location's activity since local midnight.
type Analytics struct {
	LocationID            string              `json:"location_id"`
	Date                  string              `json:"date"`
	TotalToday            int                 `json:"total_today"`
	CompletedToday        int                 `json:"completed_today"`
	CancelledToday        int                 `json:"cancelled_today"`
	NoShowToday           int                 `json:"no_show_today"`
	NoShowPercent         float64             `json:"no_show_percent"`
	AverageServiceMinutes int                 `json:"average_service_minutes"`
	PeakHour              PeakHour            `json:"peak_hour"`
	Categories            []CategoryAnalytics `json:"categories"`
	Hourly                []HourlyAnalytics   `json:"hourly"`
}

// PeakHour is the hour in which most completed services started.
type PeakHour struct {
	Hour  int    `json:"hour"`
	Count int    `json:"count"`
	Label string `json:"label"`
}

type CategoryAnalytics struct {
	CategoryID            string `json:"category_id"`
	Completed             int    `json:"completed"`
	AverageServiceMinutes int    `json:"average_service_minutes"`
}

type HourlyAnalytics struct {
	Hour                  int    `json:"hour"`
	Label                 string `json:"label"`
	Completed             int    `json:"completed"`
	AverageServiceMinutes int    `json:"average_service_minutes"`
}

// serviceTally accumulates whole-minute service durations.
type serviceTally struct {
	count   int
	minutes int
}

func (t *serviceTally) add(minutes int) {
	t.count++
	t.minutes += minutes
}

func (t serviceTally) average() int {
	if t.count == 0 {
		return 0
	}
	return round(float64(t.minutes) / float64(t.count))
}

// Analytics reports today's totals for a location. Service averages only
// count history records with both service timestamps; hours are taken in
// the service clock's time zone.
func (s *Service) Analytics(ctx context.Context, locationID string) (Analytics, error) {
	ctx, span := tracer.Start(ctx, "queue.Analytics", trace.WithAttributes(attribute.String("queue.location_id", locationID)))
	defer span.End()

	if strings.TrimSpace(locationID) == "" {
		return Analytics{}, errors.Wrap(store.ErrInvalidInput, "location_id is required")
	}
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	today, err := queryEntries(ctx, s.store,
		store.Where(models.FieldLocationID, store.OpEq, locationID),
		store.Where(models.FieldCreatedMS, store.OpGte, models.Millis(midnight)),
	)
	if err != nil {
		return Analytics{}, fail(span, errors.Wrapf(err, "today's entries at %s", locationID))
	}
	docs, err := s.store.Query(ctx, store.CollectionHistory, store.Query{
		Filters: []store.Filter{
			store.Where(models.FieldLocationID, store.OpEq, locationID),
			store.Where(models.FieldCompletedMS, store.OpGte, models.Millis(midnight)),
		},
	})
	if err != nil {
		return Analytics{}, fail(span, errors.Wrapf(err, "today's history at %s", locationID))
	}

	report := Analytics{
		LocationID:     locationID,
		Date:           midnight.Format("2006-01-02"),
		TotalToday:     len(today),
		CompletedToday: len(docs),
	}
	for _, entry := range today {
		switch entry.Status {
		case models.StatusCancelled:
			report.CancelledToday++
		case models.StatusNoShow:
			report.NoShowToday++
		}
	}
	if report.TotalToday > 0 {
		report.NoShowPercent = math.Round(float64(report.NoShowToday)/float64(report.TotalToday)*10000) / 100
	}

	var overall serviceTally
	byCategory := make(map[string]*serviceTally)
	byHour := make(map[int]*serviceTally)
	for _, doc := range docs {
		record := models.HistoryFromDocument(doc)
		minutes, ok := record.ServiceMinutes()
		if !ok {
			continue
		}
		overall.add(minutes)
		tally(byCategory, record.Entry.CategoryID).add(minutes)
		tally(byHour, record.Entry.ServiceStart.In(now.Location()).Hour()).add(minutes)
	}
	report.AverageServiceMinutes = overall.average()
	report.PeakHour = busiestHour(byHour)

	for _, category := range s.counters.Categories(locationID) {
		t := byCategory[category]
		if t == nil {
			t = &serviceTally{}
		}
		report.Categories = append(report.Categories, CategoryAnalytics{
			CategoryID:            category,
			Completed:             t.count,
			AverageServiceMinutes: t.average(),
		})
	}
	for hour := analyticsFirstHour; hour <= analyticsLastHour; hour++ {
		t := byHour[hour]
		if t == nil {
			t = &serviceTally{}
		}
		report.Hourly = append(report.Hourly, HourlyAnalytics{
			Hour:                  hour,
			Label:                 fmt.Sprintf("%d:00", hour),
			Completed:             t.count,
			AverageServiceMinutes: t.average(),
		})
	}
	return report, nil
}

func tally[K comparable](m map[K]*serviceTally, key K) *serviceTally {
	t, ok := m[key]
	if !ok {
		t = &serviceTally{}
		m[key] = t
	}
	return t
}

// busiestHour picks the hour with the most services; ties go to the earliest.
func busiestHour(byHour map[int]*serviceTally) PeakHour {
	peak := PeakHour{Label: "N/A"}
	for hour := 0; hour < 24; hour++ {
		if t := byHour[hour]; t != nil && t.count > peak.Count {
			peak.Hour, peak.Count = hour, t.count
		}
	}
	if peak.Count > 0 {
		peak.Label = fmt.Sprintf("%d:00 - %d:00", peak.Hour, peak.Hour+1)
	}
	return peak
}
