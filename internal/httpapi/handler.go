package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/notify"
	"qms/smartqueue-service/internal/queue"
	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// QueueService is the part of queue.Service the API exposes.
type QueueService interface {
	Book(ctx context.Context, in queue.BookInput) (queue.Booking, error)
	GroupBook(ctx context.Context, in queue.GroupBookInput) (queue.GroupBooking, error)
	Details(ctx context.Context, entryID string) (queue.EntryDetails, error)
	UpdateStatus(ctx context.Context, entryID string, status models.Status) (models.Entry, error)
	Cancel(ctx context.Context, entryID string) (models.Entry, error)
	CheckIn(ctx context.Context, entryID string) (models.Entry, error)
	QueueStatus(ctx context.Context, locationID, categoryID string) (queue.QueueStatus, error)
	LocationDensity(ctx context.Context, locationID string) queue.Density
	SeatAvailability(locationID string) queue.SeatAvailability
	LocationCounters(ctx context.Context, locationID string) ([]queue.CounterStatus, error)
	TrafficLights(ctx context.Context, locationID string) []queue.TrafficLight
	Analytics(ctx context.Context, locationID string) (queue.Analytics, error)
}

type MessageLog interface {
	Log(limit int) []notify.Message
}

type Handler struct {
	service  QueueService
	messages MessageLog
	metrics  http.Handler
}

type bookRequest struct {
	LocationID string `json:"location_id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Contact    string `json:"contact"`
	Priority   string `json:"priority"`
}

type groupRequest struct {
	LocationID string               `json:"location_id"`
	CategoryID string               `json:"category_id"`
	Priority   string               `json:"priority"`
	Members    []groupMemberRequest `json:"members"`
}

type groupMemberRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	Messages MessageLog
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

func NewHandler(service QueueService, options Options) *Handler {
	return &Handler{
		service:  service,
		messages: options.Messages,
		metrics:  options.Metrics,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/entries", h.handleBook)
	mux.HandleFunc("/api/entries/", h.handleEntry)
	mux.HandleFunc("/api/groups", h.handleGroupBook)
	mux.HandleFunc("/api/queues/", h.handleQueue)
	mux.HandleFunc("/api/locations/", h.handleLocation)
	mux.HandleFunc("/api/notifications", h.handleNotifications)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.LocationID = strings.TrimSpace(req.LocationID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Priority = strings.ToLower(strings.TrimSpace(req.Priority))

	if req.LocationID == "" || req.CategoryID == "" || req.Name == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "location_id, category_id, and name are required")
		return
	}

	booking, err := h.service.Book(r.Context(), queue.BookInput{
		LocationID: req.LocationID,
		CategoryID: req.CategoryID,
		Name:       req.Name,
		Contact:    req.Contact,
		Priority:   req.Priority,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handler) handleGroupBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req groupRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.LocationID = strings.TrimSpace(req.LocationID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	req.Priority = strings.ToLower(strings.TrimSpace(req.Priority))
	if req.LocationID == "" || req.CategoryID == "" || len(req.Members) == 0 {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "location_id, category_id, and members are required")
		return
	}

	members := make([]queue.GroupMember, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, queue.GroupMember{Name: m.Name, Contact: m.Contact})
	}
	group, err := h.service.GroupBook(r.Context(), queue.GroupBookInput{
		LocationID: req.LocationID,
		CategoryID: req.CategoryID,
		Priority:   req.Priority,
		Members:    members,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// handleEntry serves /api/entries/{id} and the POST actions
// /api/entries/{id}/{status|cancel|check-in}.
func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || len(parts) > 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	entryID := parts[0]
	if !isValidUUID(entryID) {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "entry id must be a UUID")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		details, err := h.service.Details(r.Context(), entryID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, details)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "status":
		h.handleUpdateStatus(w, r, entryID)
	case "cancel":
		h.handleCancel(w, r, entryID)
	case "check-in":
		h.handleCheckIn(w, r, entryID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request, entryID string) {
	var req statusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	status, ok := models.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "status must be one of waiting, arrived, serving, completed, cancelled")
		return
	}

	entry, err := h.service.UpdateStatus(r.Context(), entryID, status)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, err := h.service.Cancel(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, err := h.service.CheckIn(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	locationID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/queues/"), "/")
	if locationID == "" || strings.Contains(locationID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	categoryID := strings.TrimSpace(r.URL.Query().Get("category"))

	status, err := h.service.QueueStatus(r.Context(), locationID, categoryID)
	if err != nil {
		code, errCode, msg := mapError(err)
		writeError(w, requestID(r), code, errCode, msg)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleLocation serves
// /api/locations/{location}/{density|seats|counters|traffic-lights|analytics}.
func (h *Handler) handleLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/locations/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	locationID := parts[0]
	switch parts[1] {
	case "density":
		writeJSON(w, http.StatusOK, h.service.LocationDensity(r.Context(), locationID))
	case "seats":
		writeJSON(w, http.StatusOK, h.service.SeatAvailability(locationID))
	case "counters":
		counters, err := h.service.LocationCounters(r.Context(), locationID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, counters)
	case "traffic-lights":
		writeJSON(w, http.StatusOK, h.service.TrafficLights(r.Context(), locationID))
	case "analytics":
		report, err := h.service.Analytics(r.Context(), locationID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 500 {
			writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = value
	}
	messages := []notify.Message{}
	if h.messages != nil {
		messages = h.messages.Log(limit)
	}
	writeJSON(w, http.StatusOK, messages)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "entry_not_found", "entry not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "entry status does not allow this transition"
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", "invalid request"
	case errors.Is(err, store.ErrStoreFailure):
		return http.StatusInternalServerError, "store_failure", "store unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func requestID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(requestIDHeader))
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
