package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/notify"
	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("qms/smartqueue-service/queue")

// Messenger sends requester-facing messages. notify.Messenger implements it.
type Messenger interface {
	BookingConfirmation(ctx context.Context, entry models.Entry, estimateMinutes int)
	TurnNotification(ctx context.Context, entry models.Entry)
	CheckInConfirmation(ctx context.Context, entry models.Entry)
}

type nopMessenger struct{}

func (nopMessenger) BookingConfirmation(context.Context, models.Entry, int) {}
func (nopMessenger) TurnNotification(context.Context, models.Entry)         {}
func (nopMessenger) CheckInConfirmation(context.Context, models.Entry)      {}

type ServiceConfig struct {
	Store     store.DocumentStore
	Counters  *CounterAllocator
	Seats     *SeatAllocator
	Estimator *Estimator
	Density   *DensityClassifier
	Resolver  *Resolver
	Notifier  notify.Notifier
	Messenger Messenger
	Recorder  Recorder
	Logger    *zap.Logger
	Now       func() time.Time
}

// Service books entries and drives them through their lifecycle.
type Service struct {
	store     store.DocumentStore
	counters  *CounterAllocator
	seats     *SeatAllocator
	estimator *Estimator
	density   *DensityClassifier
	resolver  *Resolver
	notifier  notify.Notifier
	messenger Messenger
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewService fills any missing component with its default built on
// cfg.Store, which is required.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     cfg.Store,
		counters:  cfg.Counters,
		seats:     cfg.Seats,
		estimator: cfg.Estimator,
		density:   cfg.Density,
		resolver:  cfg.Resolver,
		notifier:  cfg.Notifier,
		messenger: cfg.Messenger,
		recorder:  cfg.Recorder,
		logger:    logger,
		now:       cfg.Now,
	}
	if s.counters == nil {
		s.counters = NewCounterAllocator(cfg.Store, nil)
	}
	if s.seats == nil {
		s.seats = NewSeatAllocator(DefaultSeatCapacity)
	}
	if s.estimator == nil {
		s.estimator = NewEstimator(cfg.Store, DefaultEstimatorConfig(), logger)
	}
	if s.density == nil {
		s.density = NewDensityClassifier(cfg.Store, logger)
	}
	if s.resolver == nil {
		s.resolver = NewResolver(cfg.Store, logger)
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.messenger == nil {
		s.messenger = nopMessenger{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// LocationDensity classifies the crowd at a location across categories.
func (s *Service) LocationDensity(ctx context.Context, locationID string) Density {
	return s.density.Density(ctx, locationID)
}

func (s *Service) SeatAvailability(locationID string) SeatAvailability {
	return s.seats.Availability(locationID)
}

// LocationCounters lists the counters of a location with their live load.
func (s *Service) LocationCounters(ctx context.Context, locationID string) ([]CounterStatus, error) {
	return s.counters.Status(ctx, locationID)
}

type BookInput struct {
	LocationID string `json:"location_id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Contact    string `json:"contact"`
	Priority   string `json:"priority"`
}

type GroupMember struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// GroupBookInput books several people who share a category and priority.
type GroupBookInput struct {
	LocationID string        `json:"location_id"`
	CategoryID string        `json:"category_id"`
	Priority   string        `json:"priority"`
	Members    []GroupMember `json:"members"`
}

type GroupBooking struct {
	GroupID  string    `json:"group_id"`
	Bookings []Booking `json:"bookings"`
}

type Booking struct {
	Entry                models.Entry `json:"entry"`
	EstimatedWaitMinutes int          `json:"estimated_wait_minutes"`
	Position             Position     `json:"position"`
}

type EntryDetails struct {
	Entry                models.Entry `json:"entry"`
	EstimatedWaitMinutes int          `json:"estimated_wait_minutes"`
	Position             Position     `json:"position"`
	Density              Density      `json:"density"`
}

type QueueStatus struct {
	LocationID   string         `json:"location_id"`
	CategoryID   string         `json:"category_id,omitempty"`
	WaitingCount int            `json:"waiting_count"`
	NowServing   *models.Entry  `json:"now_serving"`
	Estimate     *WaitEstimate  `json:"estimate,omitempty"`
	Density      Density        `json:"density"`
	Entries      []models.Entry `json:"entries"`
}

func (s *Service) Book(ctx context.Context, in BookInput) (Booking, error) {
	ctx, span := tracer.Start(ctx, "queue.Book")
	defer span.End()

	in.LocationID = strings.TrimSpace(in.LocationID)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	in.Name = strings.TrimSpace(in.Name)
	in.Contact = strings.TrimSpace(in.Contact)
	if err := validateBooking(in.LocationID, in.CategoryID); err != nil {
		return Booking{}, err
	}
	if in.Name == "" {
		return Booking{}, errors.Wrap(store.ErrInvalidInput, "name is required")
	}
	span.SetAttributes(attribute.String("queue.location_id", in.LocationID), attribute.String("queue.category_id", in.CategoryID))

	entry, err := s.newEntry(ctx, in)
	if err != nil {
		return Booking{}, fail(span, err)
	}
	entries := []models.Entry{entry}
	if err := s.insert(ctx, entries); err != nil {
		return Booking{}, fail(span, err)
	}
	entry = entries[0]

	estimate := s.estimator.EstimateWait(ctx, entry.LocationID, entry.CategoryID)
	booking := s.booked(ctx, entry, estimate)
	s.publish(ctx, notify.ActionBooked, entry, "New entry booked")
	return booking, nil
}

// GroupBook books every member in one step. Members get consecutive
// sequence numbers, each with its own counter and seat, and share a group
// id. Nothing is booked when persisting fails.
func (s *Service) GroupBook(ctx context.Context, in GroupBookInput) (GroupBooking, error) {
	ctx, span := tracer.Start(ctx, "queue.GroupBook")
	defer span.End()

	in.LocationID = strings.TrimSpace(in.LocationID)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	if err := validateBooking(in.LocationID, in.CategoryID); err != nil {
		return GroupBooking{}, err
	}
	if len(in.Members) == 0 {
		return GroupBooking{}, errors.Wrap(store.ErrInvalidInput, "members are required")
	}
	for i := range in.Members {
		in.Members[i].Name = strings.TrimSpace(in.Members[i].Name)
		in.Members[i].Contact = strings.TrimSpace(in.Members[i].Contact)
		if in.Members[i].Name == "" {
			return GroupBooking{}, errors.Wrapf(store.ErrInvalidInput, "member %d name is required", i+1)
		}
	}
	span.SetAttributes(
		attribute.String("queue.location_id", in.LocationID),
		attribute.String("queue.category_id", in.CategoryID),
		attribute.Int("queue.group_size", len(in.Members)),
	)

	groupID := uuid.NewString()
	entries := make([]models.Entry, 0, len(in.Members))
	for i, member := range in.Members {
		entry, err := s.newEntry(ctx, BookInput{
			LocationID: in.LocationID,
			CategoryID: in.CategoryID,
			Name:       member.Name,
			Contact:    member.Contact,
			Priority:   in.Priority,
		})
		if err != nil {
			return GroupBooking{}, fail(span, err)
		}
		entry.GroupID = groupID
		entry.GroupIndex = i + 1
		entry.GroupSize = len(in.Members)
		entries = append(entries, entry)
	}
	if err := s.insert(ctx, entries); err != nil {
		return GroupBooking{}, fail(span, err)
	}

	estimate := s.estimator.EstimateWait(ctx, in.LocationID, in.CategoryID)
	group := GroupBooking{GroupID: groupID, Bookings: make([]Booking, 0, len(entries))}
	for _, entry := range entries {
		group.Bookings = append(group.Bookings, s.booked(ctx, entry, estimate))
	}
	s.notifier.Notify(ctx, in.LocationID, notify.Event{
		Action:     notify.ActionGroupBooked,
		LocationID: in.LocationID,
		Status:     models.StatusWaiting,
		Message:    fmt.Sprintf("Group of %d booked", len(entries)),
		OccurredAt: s.now().UTC(),
	})
	return group, nil
}

func validateBooking(locationID, categoryID string) error {
	switch {
	case locationID == "":
		return errors.Wrap(store.ErrInvalidInput, "location_id is required")
	case categoryID == "":
		return errors.Wrap(store.ErrInvalidInput, "category_id is required")
	}
	return nil
}

// newEntry builds a waiting entry with its counter. The sequence number is
// assigned by insert.
func (s *Service) newEntry(ctx context.Context, in BookInput) (models.Entry, error) {
	counter, err := s.counters.Allocate(ctx, in.LocationID, in.CategoryID)
	if err != nil {
		return models.Entry{}, errors.Wrap(err, "allocate counter")
	}
	return models.Entry{
		EntryID:     uuid.NewString(),
		LocationID:  in.LocationID,
		CategoryID:  in.CategoryID,
		Name:        in.Name,
		Contact:     in.Contact,
		Priority:    models.ParsePriority(in.Priority),
		Status:      models.StatusWaiting,
		CounterID:   counter.CounterID,
		CounterName: counter.Name,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// insert seats the entries and persists them numbered from their
// location's sequence. Seats are released again when persisting fails, and
// the sequence only advances when every entry is stored.
func (s *Service) insert(ctx context.Context, entries []models.Entry) error {
	locationID := entries[0].LocationID
	docs := make([]store.SequencedDocument, 0, len(entries))
	for i := range entries {
		if seat, ok := s.seats.Assign(locationID, entries[i].EntryID); ok {
			entries[i].SeatID = &seat.SeatID
		} else {
			s.recorder.SeatPoolFull(locationID)
		}
		docs = append(docs, store.SequencedDocument{ID: entries[i].EntryID, Doc: entries[i].Document()})
	}

	seq := store.Sequence{Collection: store.CollectionLocations, ID: locationID, Field: models.FieldLastSequence}
	first, err := s.store.InsertSequenced(ctx, seq, store.CollectionEntries, models.FieldSequence, docs)
	if err != nil {
		for _, entry := range entries {
			s.seats.Release(locationID, entry.EntryID)
		}
		return errors.Wrapf(err, "save %d entries at %s", len(entries), locationID)
	}
	for i := range entries {
		entries[i].Sequence = first + int64(i)
	}
	return nil
}

func (s *Service) booked(ctx context.Context, entry models.Entry, estimate int) Booking {
	position := s.resolver.Position(ctx, entry.LocationID, entry.CategoryID, entry.EntryID)
	s.recorder.EntryBooked(entry.LocationID, string(entry.Priority))
	s.recorder.WaitEstimated(entry.LocationID, estimate)
	s.messenger.BookingConfirmation(ctx, entry, estimate)
	s.logger.Info("entry booked",
		zap.String("entry_id", entry.EntryID),
		zap.String("location_id", entry.LocationID),
		zap.Int64("sequence", entry.Sequence),
		zap.String("counter_id", entry.CounterID),
		zap.String("group_id", entry.GroupID),
	)
	return Booking{Entry: entry, EstimatedWaitMinutes: estimate, Position: position}
}

func (s *Service) Get(ctx context.Context, entryID string) (models.Entry, error) {
	doc, ok, err := s.store.Get(ctx, store.CollectionEntries, entryID)
	if err != nil {
		return models.Entry{}, errors.Wrapf(err, "get entry %s", entryID)
	}
	if !ok {
		return models.Entry{}, errors.Wrapf(store.ErrNotFound, "entry %s", entryID)
	}
	return models.EntryFromDocument(doc), nil
}

func (s *Service) Details(ctx context.Context, entryID string) (EntryDetails, error) {
	entry, err := s.Get(ctx, entryID)
	if err != nil {
		return EntryDetails{}, err
	}
	return EntryDetails{
		Entry:                entry,
		EstimatedWaitMinutes: s.estimator.EstimateWait(ctx, entry.LocationID, entry.CategoryID),
		Position:             s.resolver.Position(ctx, entry.LocationID, entry.CategoryID, entry.EntryID),
		Density:              s.density.Density(ctx, entry.LocationID),
	}, nil
}

// UpdateStatus applies a caller-requested transition. no-show is reserved
// for the sweeper and is rejected here.
func (s *Service) UpdateStatus(ctx context.Context, entryID string, status models.Status) (models.Entry, error) {
	ctx, span := tracer.Start(ctx, "queue.UpdateStatus", trace.WithAttributes(
		attribute.String("queue.entry_id", entryID),
		attribute.String("queue.status", string(status)),
	))
	defer span.End()

	entry, err := s.Get(ctx, entryID)
	if err != nil {
		return models.Entry{}, fail(span, err)
	}
	if !store.ValidRequestedTransition(entry.Status, status) {
		return models.Entry{}, fail(span, errors.Wrapf(store.ErrInvalidTransition, "%s -> %s", entry.Status, status))
	}

	action, message := notify.ActionStatusUpdated, "Entry status updated to "+string(status)
	if status == models.StatusCancelled {
		action, message = notify.ActionCancelled, "Entry cancelled"
	}
	entry, err = s.transition(ctx, entry, status, action, message)
	if err != nil {
		return models.Entry{}, fail(span, err)
	}
	return entry, nil
}

// CheckIn marks a waiting entry as arrived at the kiosk and confirms it to
// the requester.
func (s *Service) CheckIn(ctx context.Context, entryID string) (models.Entry, error) {
	ctx, span := tracer.Start(ctx, "queue.CheckIn", trace.WithAttributes(attribute.String("queue.entry_id", entryID)))
	defer span.End()

	entry, err := s.Get(ctx, entryID)
	if err != nil {
		return models.Entry{}, fail(span, err)
	}
	if entry.Status != models.StatusWaiting {
		return models.Entry{}, fail(span, errors.Wrapf(store.ErrInvalidTransition, "entry is already %s", entry.Status))
	}
	entry, err = s.transition(ctx, entry, models.StatusArrived, notify.ActionCheckedIn,
		fmt.Sprintf("Entry #%d checked in", entry.Sequence))
	if err != nil {
		return models.Entry{}, fail(span, err)
	}
	s.messenger.CheckInConfirmation(ctx, entry)
	return entry, nil
}

// transition persists a validated status change and runs its side effects.
// A completion is recorded in history before the entry changes, so a failed
// write leaves the entry in its previous status and the call can be retried.
func (s *Service) transition(ctx context.Context, entry models.Entry, status models.Status, action, message string) (models.Entry, error) {
	now := s.now().UTC()
	partial := store.Document{models.FieldStatus: string(status)}
	switch status {
	case models.StatusArrived:
		entry.ArrivedAt = &now
		partial[models.FieldArrivedMS] = models.Millis(now)
	case models.StatusServing:
		entry.ServiceStart = &now
		partial[models.FieldServiceStartMS] = models.Millis(now)
	case models.StatusCompleted:
		entry.ServiceEnd = &now
		partial[models.FieldServiceEndMS] = models.Millis(now)
	case models.StatusCancelled:
		entry.CancelledAt = &now
		partial[models.FieldCancelledMS] = models.Millis(now)
	}
	entry.Status = status

	var recordID string
	if status == models.StatusCompleted {
		record := models.HistoryRecord{RecordID: uuid.NewString(), Entry: entry, CompletedAt: now}
		if err := s.store.Set(ctx, store.CollectionHistory, record.RecordID, record.Document(), false); err != nil {
			return models.Entry{}, errors.Wrapf(err, "append history for %s", entry.EntryID)
		}
		recordID = record.RecordID
	}
	if err := s.store.Update(ctx, store.CollectionEntries, entry.EntryID, partial); err != nil {
		if recordID != "" {
			if derr := s.store.Delete(ctx, store.CollectionHistory, recordID); derr != nil {
				s.logger.Warn("remove orphaned history record", zap.String("record_id", recordID), zap.Error(derr))
			}
		}
		return models.Entry{}, errors.Wrapf(err, "update entry %s", entry.EntryID)
	}

	if status.Terminal() {
		s.seats.Release(entry.LocationID, entry.EntryID)
	}
	if status == models.StatusServing {
		s.messenger.TurnNotification(ctx, entry)
	}
	s.publish(ctx, action, entry, message)
	s.recorder.EntryTransitioned(string(status))
	s.logger.Info("entry status updated", zap.String("entry_id", entry.EntryID), zap.String("status", string(status)))
	return entry, nil
}

func (s *Service) Cancel(ctx context.Context, entryID string) (models.Entry, error) {
	return s.UpdateStatus(ctx, entryID, models.StatusCancelled)
}

// QueueStatus summarizes the active entries of a location, optionally
// narrowed to one category. The estimate is only computed for a category.
func (s *Service) QueueStatus(ctx context.Context, locationID, categoryID string) (QueueStatus, error) {
	ctx, span := tracer.Start(ctx, "queue.QueueStatus", trace.WithAttributes(attribute.String("queue.location_id", locationID)))
	defer span.End()

	if strings.TrimSpace(locationID) == "" {
		return QueueStatus{}, errors.Wrap(store.ErrInvalidInput, "location_id is required")
	}
	filters := []store.Filter{
		store.Where(models.FieldLocationID, store.OpEq, locationID),
		store.Where(models.FieldStatus, store.OpIn, []string{string(models.StatusWaiting), string(models.StatusServing)}),
	}
	if categoryID != "" {
		filters = append(filters, store.Where(models.FieldCategoryID, store.OpEq, categoryID))
	}
	entries, err := queryEntries(ctx, s.store, filters...)
	if err != nil {
		return QueueStatus{}, fail(span, errors.Wrapf(err, "queue status %s", locationID))
	}
	sortEntries(entries)

	status := QueueStatus{
		LocationID: locationID,
		CategoryID: categoryID,
		Density:    s.density.Density(ctx, locationID),
		Entries:    entries,
	}
	for i := range entries {
		switch entries[i].Status {
		case models.StatusWaiting:
			status.WaitingCount++
		case models.StatusServing:
			if status.NowServing == nil || servedBefore(entries[i], *status.NowServing) {
				serving := entries[i]
				status.NowServing = &serving
			}
		}
	}
	if categoryID != "" {
		estimate := s.estimator.Breakdown(ctx, locationID, categoryID)
		status.Estimate = &estimate
	}
	return status, nil
}

func servedBefore(a, b models.Entry) bool {
	if a.ServiceStart == nil || b.ServiceStart == nil {
		return a.ServiceStart != nil
	}
	return a.ServiceStart.Before(*b.ServiceStart)
}

func (s *Service) publish(ctx context.Context, action string, entry models.Entry, message string) {
	s.notifier.Notify(ctx, entry.LocationID, notify.Event{
		Action:     action,
		LocationID: entry.LocationID,
		EntryID:    entry.EntryID,
		Status:     entry.Status,
		Message:    message,
		Entry:      &entry,
		OccurredAt: s.now().UTC(),
	})
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
