package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/prom"
	"github.com/home-express/finance-core/pkg/redis"
	"github.com/home-express/finance-core/pkg/worker"
)

type StreamConfig struct {
	Stream  string
	MaxLen  int64
	Workers int
	Buffer  int
}

// StreamPublisher appends committed finance events to a Redis stream. Notify
// never blocks the caller: when the buffer is full the event is dropped and
// logged.
type StreamPublisher struct {
	adapter redis.RedisAdapter
	config  StreamConfig
	pool    *worker.WorkerManager
	now     func() time.Time
}

func NewStreamPublisher(adapter redis.RedisAdapter, config StreamConfig) (*StreamPublisher, error) {
	if adapter == nil {
		return nil, fmt.Errorf("redis adapter is required")
	}
	if config.Stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if config.Buffer <= 0 {
		config.Buffer = 1024
	}

	p := &StreamPublisher{adapter: adapter, config: config, now: time.Now}
	p.pool = worker.NewWorkerManager(config.Buffer, config.Workers, func(_ int, job interface{}) {
		e, ok := job.(model.Event)
		if !ok {
			return
		}
		if _, err := p.Publish(e); err != nil {
			logger.Warn("event publish failed", "type", e.Type, "entity", e.EntityType, "entity_id", e.EntityID, "error", err)
		}
	})
	return p, nil
}

func (p *StreamPublisher) Start() {
	p.pool.Start()
	logger.Info("event publisher started", "stream", p.config.Stream, "workers", p.config.Workers)
}

// Stop waits for the events already picked up by a worker.
func (p *StreamPublisher) Stop() {
	p.pool.Stop()
	logger.Info("event publisher stopped", "stream", p.config.Stream, "dropped_unread", p.pool.GetUnreadCount())
}

// Notify implements services.Notifier.
func (p *StreamPublisher) Notify(_ context.Context, e model.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now().UTC()
	}
	if !p.pool.TryEnqueue(e) {
		prom.EventPublished(string(e.Type), fmt.Errorf("buffer full"))
		logger.Warn("event buffer full, event dropped", "type", e.Type, "entity", e.EntityType, "entity_id", e.EntityID)
	}
}

// Publish writes one event synchronously and returns its stream id.
func (p *StreamPublisher) Publish(e model.Event) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	id, err := p.adapter.XAdd(p.config.Stream, p.config.MaxLen, map[string]interface{}{
		"type":      string(e.Type),
		"entity":    e.EntityType,
		"entity_id": strconv.FormatInt(e.EntityID, 10),
		"data":      string(payload),
	})
	prom.EventPublished(string(e.Type), err)
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.config.Stream, err)
	}
	logger.Debug("event published", "stream", p.config.Stream, "id", id, "type", e.Type, "entity_id", e.EntityID)
	return id, nil
}

// Decode turns a stream entry written by Publish back into an event.
func Decode(msg redis.StreamMessage) (model.Event, error) {
	var e model.Event
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return e, fmt.Errorf("stream entry %s has no data field", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
	}
	return e, nil
}

// Logger writes events to the application log. It stands in for the stream
// when Redis is not configured.
type Logger struct{}

func (Logger) Notify(_ context.Context, e model.Event) {
	logger.Info("finance event",
		"type", e.Type, "entity", e.EntityType, "entity_id", e.EntityID,
		"booking_id", e.BookingID, "transport_id", e.TransportID,
		"status", e.Status, "amount", e.Amount, "reason", e.Reason)
}
