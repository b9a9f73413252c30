package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisBuffer = 256

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type outboundEvent struct {
	channel string
	action  string
	payload []byte
}

// RedisPublisher publishes events as JSON on the location's pub/sub
// channel so other processes (socket gateways, dashboards) can relay them.
// Notify only queues the event; a single goroutine publishes in order and
// events arriving while the queue is full are dropped.
type RedisPublisher struct {
	client  publisher
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan outboundEvent
	done   chan struct{}
}

func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return newRedisPublisher(client, logger, defaultRedisBuffer)
}

func newRedisPublisher(client publisher, logger *zap.Logger, buffer int) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = defaultRedisBuffer
	}
	p := &RedisPublisher{
		client:  client,
		timeout: 2 * time.Second,
		logger:  logger,
		queue:   make(chan outboundEvent, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *RedisPublisher) Notify(_ context.Context, locationID string, event Event) {
	event.LocationID = locationID
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode event", zap.Error(err), zap.String("action", event.Action))
		return
	}
	out := outboundEvent{channel: Channel(locationID), action: event.Action, payload: payload}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("publisher closed, drop event", zap.String("action", event.Action))
		return
	}
	select {
	case p.queue <- out:
	default:
		p.logger.Warn("publish queue full, drop event",
			zap.String("channel", out.channel),
			zap.String("action", out.action))
	}
}

// Close stops accepting events and waits for the queued ones to be
// published.
func (p *RedisPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for out := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.client.Publish(ctx, out.channel, out.payload).Err(); err != nil {
			p.logger.Warn("publish event",
				zap.Error(err),
				zap.String("channel", out.channel),
				zap.String("action", out.action))
		}
		cancel()
	}
}
