package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Provider kinds accepted besides an http(s) gateway URL.
const (
	ProviderLog  = "log"
	ProviderNoop = "noop"
	ProviderFail = "fail"
)

var errSimulatedFailure = errors.New("simulated provider failure")

// Provider hands one rendered message to a carrier.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type ProviderFunc func(ctx context.Context, msg Message) error

func (f ProviderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// NewProvider resolves a provider setting. An empty kind logs messages.
func NewProvider(kind string, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch kind {
	case "", ProviderLog:
		return logProvider(logger), nil
	case ProviderNoop:
		return ProviderFunc(func(context.Context, Message) error { return nil }), nil
	case ProviderFail:
		return ProviderFunc(func(context.Context, Message) error { return errSimulatedFailure }), nil
	}
	u, err := url.Parse(kind)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("unknown message provider %q", kind)
	}
	return NewGatewayProvider(u.String(), &http.Client{Timeout: 5 * time.Second}), nil
}

func logProvider(logger *zap.Logger) Provider {
	return ProviderFunc(func(_ context.Context, msg Message) error {
		logger.Info("message sent",
			zap.String("message_id", msg.MessageID),
			zap.String("channel", msg.Channel),
			zap.String("recipient", maskRecipient(msg.Recipient)),
			zap.String("body", msg.Body))
		return nil
	})
}

// maskRecipient keeps the last four characters of a contact.
func maskRecipient(recipient string) string {
	runes := []rune(recipient)
	if len(runes) <= 4 {
		return recipient
	}
	masked := bytes.Repeat([]byte("*"), len(runes)-4)
	return string(masked) + string(runes[len(runes)-4:])
}

// GatewayProvider posts messages to an SMS/WhatsApp relay. The message id
// is sent as the idempotency key so the relay can drop retries.
type GatewayProvider struct {
	url    string
	client *http.Client
}

type gatewayRequest struct {
	MessageID string `json:"message_id"`
	Channel   string `json:"channel"`
	To        string `json:"to"`
	Body      string `json:"body"`
}

func NewGatewayProvider(url string, client *http.Client) *GatewayProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GatewayProvider{url: url, client: client}
}

func (p *GatewayProvider) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(gatewayRequest{
		MessageID: msg.MessageID,
		Channel:   msg.Channel,
		To:        msg.Recipient,
		Body:      msg.Body,
	})
	if err != nil {
		return errors.Wrap(err, "encode gateway request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.MessageID)

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s gateway", msg.Channel)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Newf("%s gateway returned %d", msg.Channel, resp.StatusCode)
	}
	return nil
}
