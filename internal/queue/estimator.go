package queue

import (
	"context"
	"time"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/store"

	"go.uber.org/zap"
)

type EstimatorConfig struct {
	DefaultMinutes int
	Window         int
	PeakStartHour  int
	PeakEndHour    int
	PeakMultiplier float64
	// Now defaults to time.Now. The peak window uses its local hour.
	Now func() time.Time
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		DefaultMinutes: 8,
		Window:         10,
		PeakStartHour:  11,
		PeakEndHour:    14,
		PeakMultiplier: 1.25,
		Now:            time.Now,
	}
}

// WaitEstimate is the projected wait for one (location, category) queue
// and the inputs it was computed from.
type WaitEstimate struct {
	WaitingCount          int  `json:"waiting_count"`
	AverageServiceMinutes int  `json:"average_service_minutes"`
	Samples               int  `json:"samples"`
	PeakHour              bool `json:"peak_hour"`
	EstimatedMinutes      int  `json:"estimated_wait_minutes"`
	Fallback              bool `json:"fallback"`
}

// Estimator projects wait time from a recency-weighted moving average of
// completed service durations. Nothing is cached between calls.
type Estimator struct {
	store  store.DocumentStore
	cfg    EstimatorConfig
	logger *zap.Logger
}

func NewEstimator(st store.DocumentStore, cfg EstimatorConfig, logger *zap.Logger) *Estimator {
	def := DefaultEstimatorConfig()
	if cfg.DefaultMinutes <= 0 {
		cfg.DefaultMinutes = def.DefaultMinutes
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.PeakMultiplier <= 0 {
		cfg.PeakMultiplier = def.PeakMultiplier
	}
	if cfg.PeakStartHour == 0 && cfg.PeakEndHour == 0 {
		cfg.PeakStartHour, cfg.PeakEndHour = def.PeakStartHour, def.PeakEndHour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{store: st, cfg: cfg, logger: logger}
}

// EstimateWait returns the projected wait in minutes.
func (e *Estimator) EstimateWait(ctx context.Context, locationID, categoryID string) int {
	return e.Breakdown(ctx, locationID, categoryID).EstimatedMinutes
}

func (e *Estimator) Breakdown(ctx context.Context, locationID, categoryID string) WaitEstimate {
	waiting, err := countByStatus(ctx, e.store, models.StatusWaiting,
		store.Where(models.FieldLocationID, store.OpEq, locationID),
		store.Where(models.FieldCategoryID, store.OpEq, categoryID),
	)
	if err != nil {
		e.logger.Warn("wait estimate failed", zap.String("location_id", locationID), zap.String("category_id", categoryID), zap.Error(err))
		return WaitEstimate{
			AverageServiceMinutes: e.cfg.DefaultMinutes,
			EstimatedMinutes:      e.cfg.DefaultMinutes,
			Fallback:              true,
		}
	}

	average, samples := e.AverageServiceMinutes(ctx, locationID, categoryID)
	peak := e.peakHour()
	estimated := float64(waiting * average)
	if peak {
		estimated *= e.cfg.PeakMultiplier
	}
	return WaitEstimate{
		WaitingCount:          waiting,
		AverageServiceMinutes: average,
		Samples:               samples,
		PeakHour:              peak,
		EstimatedMinutes:      round(estimated),
	}
}

// AverageServiceMinutes is the weighted moving average over the most recent
// completed records; the newest of N qualifying records weighs N, the
// oldest 1. With no qualifying record, or on store failure, it returns the
// default and zero samples.
func (e *Estimator) AverageServiceMinutes(ctx context.Context, locationID, categoryID string) (int, int) {
	docs, err := e.store.Query(ctx, store.CollectionHistory, store.Query{
		Filters: []store.Filter{
			store.Where(models.FieldLocationID, store.OpEq, locationID),
			store.Where(models.FieldCategoryID, store.OpEq, categoryID),
			store.Where(models.FieldStatus, store.OpEq, string(models.StatusCompleted)),
		},
		OrderBy: &store.Order{Field: models.FieldServiceEndMS, Descending: true},
		Limit:   e.cfg.Window,
	})
	if err != nil {
		e.logger.Warn("service history lookup failed", zap.String("location_id", locationID), zap.Error(err))
		return e.cfg.DefaultMinutes, 0
	}

	minutes := make([]int, 0, len(docs))
	for _, doc := range docs {
		if m, ok := models.HistoryFromDocument(doc).ServiceMinutes(); ok {
			minutes = append(minutes, m)
		}
	}
	return weightedAverage(minutes, e.cfg.DefaultMinutes), len(minutes)
}

// weightedAverage expects minutes newest first.
func weightedAverage(minutes []int, fallback int) int {
	n := len(minutes)
	if n == 0 {
		return fallback
	}
	var sum, weights int
	for i, m := range minutes {
		w := n - i
		sum += m * w
		weights += w
	}
	return round(float64(sum) / float64(weights))
}

func (e *Estimator) peakHour() bool {
	hour := e.cfg.Now().Hour()
	return hour >= e.cfg.PeakStartHour && hour < e.cfg.PeakEndHour
}
