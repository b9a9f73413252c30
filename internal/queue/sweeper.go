package queue

import (
	"context"
	"time"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/notify"
	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type SweeperConfig struct {
	Interval time.Duration
	// Timeout is how long an entry may wait before it is a no-show.
	Timeout  time.Duration
	Now      func() time.Time
	Recorder Recorder
}

// Sweeper marks entries that have waited longer than Timeout as no-show.
type Sweeper struct {
	store    store.DocumentStore
	seats    *SeatAllocator
	notifier notify.Notifier
	cfg      SweeperConfig
	logger   *zap.Logger
}

func NewSweeper(st store.DocumentStore, seats *SeatAllocator, notifier notify.Notifier, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: st, seats: seats, notifier: notifier, cfg: cfg, logger: logger}
}

// Run sweeps on every tick until ctx is done. A failed sweep is logged and
// the next tick runs as usual.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
			if _, err := s.Sweep(sweepCtx); err != nil {
				s.logger.Error("no-show sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Sweep runs one pass and returns how many entries it marked. Per-entry
// failures do not stop the pass; they are combined into the returned error.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "queue.Sweep")
	defer span.End()

	started := time.Now()
	now := s.cfg.Now()
	cutoff := now.Add(-s.cfg.Timeout)

	candidates, err := queryEntries(ctx, s.store,
		store.Where(models.FieldStatus, store.OpEq, string(models.StatusWaiting)),
		store.Where(models.FieldCreatedMS, store.OpLt, models.Millis(cutoff)),
	)
	if err != nil {
		err = errors.Wrap(err, "list waiting entries")
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		s.cfg.Recorder.SweepFinished(time.Since(started), true)
		return 0, err
	}

	var combined error
	marked := 0
	for _, entry := range candidates {
		if now.Sub(entry.CreatedAt) <= s.cfg.Timeout {
			continue
		}
		if err := s.markNoShow(ctx, entry, now); err != nil {
			s.logger.Warn("no-show update failed", zap.String("entry_id", entry.EntryID), zap.Error(err))
			combined = errors.CombineErrors(combined, err)
			continue
		}
		marked++
	}

	span.SetAttributes(attribute.Int("queue.no_show.marked", marked))
	if combined != nil {
		span.RecordError(combined)
		span.SetStatus(codes.Error, "partial sweep")
	}
	if marked > 0 {
		s.logger.Info("no-show sweep", zap.Int("marked", marked))
	}
	s.cfg.Recorder.SweepFinished(time.Since(started), combined != nil)
	return marked, combined
}

func (s *Sweeper) markNoShow(ctx context.Context, entry models.Entry, now time.Time) error {
	if err := s.store.Update(ctx, store.CollectionEntries, entry.EntryID, store.Document{
		models.FieldStatus:   string(models.StatusNoShow),
		models.FieldNoShowMS: models.Millis(now),
	}); err != nil {
		return errors.Wrapf(err, "mark %s no-show", entry.EntryID)
	}

	entry.Status = models.StatusNoShow
	entry.NoShowAt = &now
	if s.seats != nil {
		s.seats.Release(entry.LocationID, entry.EntryID)
	}
	s.cfg.Recorder.EntryNoShow(entry.LocationID)
	s.notifier.Notify(ctx, entry.LocationID, notify.Event{
		Action:     notify.ActionNoShow,
		LocationID: entry.LocationID,
		EntryID:    entry.EntryID,
		Status:     entry.Status,
		Message:    "Entry marked as no-show",
		Entry:      &entry,
		OccurredAt: now,
	})
	return nil
}
