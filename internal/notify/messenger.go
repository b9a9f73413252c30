package notify

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"qms/smartqueue-service/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"

	templateBooked  = "entry_booked"
	templateTurn    = "entry_turn"
	templateCheckIn = "entry_checked_in"

	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

type Message struct {
	MessageID string    `json:"message_id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// DeliveryRecorder observes every delivery attempt.
type DeliveryRecorder interface {
	MessageSent(channel string, delivered bool)
}

type nopDeliveryRecorder struct{}

func (nopDeliveryRecorder) MessageSent(string, bool) {}

type MessengerConfig struct {
	SMSProvider      string
	WhatsAppProvider string
	LogSize          int
	Recorder         DeliveryRecorder
}

// Messenger sends requester-facing text messages (booking confirmation,
// turn reminders) and keeps the most recent ones for the dashboard.
type Messenger struct {
	providers map[string]Provider
	recorder  DeliveryRecorder
	logger    *zap.Logger

	mu      sync.Mutex
	log     []Message
	logSize int
}

func NewMessenger(cfg MessengerConfig, logger *zap.Logger) (*Messenger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.LogSize
	if size <= 0 {
		size = 200
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopDeliveryRecorder{}
	}
	sms, err := NewProvider(cfg.SMSProvider, logger)
	if err != nil {
		return nil, errors.Wrap(err, "sms")
	}
	whatsapp, err := NewProvider(cfg.WhatsAppProvider, logger)
	if err != nil {
		return nil, errors.Wrap(err, "whatsapp")
	}
	return &Messenger{
		providers: map[string]Provider{ChannelSMS: sms, ChannelWhatsApp: whatsapp},
		recorder:  recorder,
		logger:    logger,
		logSize:   size,
	}, nil
}

func (m *Messenger) BookingConfirmation(ctx context.Context, entry models.Entry, estimateMinutes int) {
	payload := entryPayload(entry)
	payload["estimate"] = strconv.Itoa(estimateMinutes)
	m.deliver(ctx, entry.Contact, renderTemplate(defaultTemplate(templateBooked), payload), ChannelSMS)
}

func (m *Messenger) TurnNotification(ctx context.Context, entry models.Entry) {
	body := renderTemplate(defaultTemplate(templateTurn), entryPayload(entry))
	m.deliver(ctx, entry.Contact, body, ChannelSMS, ChannelWhatsApp)
}

func (m *Messenger) CheckInConfirmation(ctx context.Context, entry models.Entry) {
	m.deliver(ctx, entry.Contact, renderTemplate(defaultTemplate(templateCheckIn), entryPayload(entry)), ChannelSMS)
}

// Log returns up to limit messages, newest first.
func (m *Messenger) Log(limit int) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.log) {
		limit = len(m.log)
	}
	out := make([]Message, 0, limit)
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.log[i])
	}
	return out
}

func (m *Messenger) deliver(ctx context.Context, recipient, body string, channels ...string) {
	if strings.TrimSpace(recipient) == "" {
		return
	}
	for _, channel := range channels {
		msg := Message{
			MessageID: uuid.NewString(),
			Channel:   channel,
			Recipient: recipient,
			Body:      body,
			SentAt:    time.Now().UTC(),
		}
		if err := m.providers[channel].Send(ctx, msg); err != nil {
			msg.Status = StatusFailed
			msg.Error = err.Error()
			m.logger.Warn("message delivery failed",
				zap.String("message_id", msg.MessageID),
				zap.String("channel", channel),
				zap.Error(err))
		} else {
			msg.Status = StatusDelivered
		}
		m.recorder.MessageSent(channel, msg.Status == StatusDelivered)
		m.append(msg)
	}
}

func (m *Messenger) append(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, msg)
	if over := len(m.log) - m.logSize; over > 0 {
		m.log = append([]Message(nil), m.log[over:]...)
	}
}

type payloadData map[string]string

func entryPayload(entry models.Entry) payloadData {
	counter := entry.CounterName
	if counter == "" {
		counter = "the counter"
	}
	return payloadData{
		"entry_id": entry.EntryID,
		"sequence": strconv.FormatInt(entry.Sequence, 10),
		"name":     entry.Name,
		"category": entry.CategoryID,
		"counter":  counter,
	}
}

func defaultTemplate(templateID string) string {
	switch templateID {
	case templateBooked:
		return "Token #{sequence} booked for {category}. Estimated wait: ~{estimate} min. Track ID: {entry_id}"
	case templateTurn:
		return "Dear {name}, your turn is approaching for {category}! Token #{sequence}. Please proceed to {counter}."
	case templateCheckIn:
		return "Checked in! Token #{sequence}. Please wait for your turn."
	}
	return ""
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	for key, value := range payload {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}
