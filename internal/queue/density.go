package queue

import (
	"context"
	"fmt"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/store"

	"go.uber.org/zap"
)

type DensityLevel string

const (
	DensityLow    DensityLevel = "LOW"
	DensityMedium DensityLevel = "MEDIUM"
	DensityHigh   DensityLevel = "HIGH"
)

type Density struct {
	Level   DensityLevel `json:"level"`
	Ratio   string       `json:"ratio"`
	Color   string       `json:"color"`
	Waiting int          `json:"waiting"`
	Serving int          `json:"serving"`
}

// Classify bands waiting entries per active counter: below 2 is LOW, 2
// through 5 inclusive is MEDIUM, above 5 is HIGH.
func Classify(waiting, serving int) Density {
	active := serving
	if active < 1 {
		active = 1
	}
	ratio := float64(waiting) / float64(active)

	level := DensityHigh
	switch {
	case ratio < 2:
		level = DensityLow
	case ratio <= 5:
		level = DensityMedium
	}
	return Density{
		Level:   level,
		Ratio:   fmt.Sprintf("%.2f", ratio),
		Color:   Color(level),
		Waiting: waiting,
		Serving: serving,
	}
}

func Color(level DensityLevel) string {
	switch level {
	case DensityMedium:
		return "yellow"
	case DensityHigh:
		return "red"
	default:
		return "green"
	}
}

// DensityClassifier reads live counts for a location, across categories.
type DensityClassifier struct {
	store  store.DocumentStore
	logger *zap.Logger
}

func NewDensityClassifier(st store.DocumentStore, logger *zap.Logger) *DensityClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DensityClassifier{store: st, logger: logger}
}

func (d *DensityClassifier) Density(ctx context.Context, locationID string) Density {
	byLocation := store.Where(models.FieldLocationID, store.OpEq, locationID)
	waiting, err := countByStatus(ctx, d.store, models.StatusWaiting, byLocation)
	if err != nil {
		return d.failed(locationID, err)
	}
	serving, err := countByStatus(ctx, d.store, models.StatusServing, byLocation)
	if err != nil {
		return d.failed(locationID, err)
	}
	return Classify(waiting, serving)
}

func (d *DensityClassifier) failed(locationID string, err error) Density {
	d.logger.Warn("density lookup failed", zap.String("location_id", locationID), zap.Error(err))
	return Density{Level: DensityLow, Ratio: "0.00", Color: Color(DensityLow)}
}
