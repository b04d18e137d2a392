package messaging

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"txwizard/domain/wizard"
)

// Publisher sends an encoded event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Relay moves wizard events from listener callbacks to the bus on its own
// goroutine, so a slow broker never stalls a wizard.
type Relay struct {
	publisher Publisher
	source    string
	queue     chan wizard.Event
	logger    *zap.Logger
	dropped   atomic.Int64
}

func NewRelay(p Publisher, source string, buffer int, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Relay{
		publisher: p,
		source:    source,
		queue:     make(chan wizard.Event, buffer),
		logger:    logger.Named("relay"),
	}
}

// Enqueue hands ev to the relay without blocking. Events are dropped when
// the buffer is full.
func (r *Relay) Enqueue(ev wizard.Event) {
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("relay buffer full, event dropped",
			zap.String("event_id", ev.EventID),
			zap.String("event_type", string(ev.Type)))
	}
}

// Dropped reports how many events were discarded on a full buffer.
func (r *Relay) Dropped() int64 { return r.dropped.Load() }

// Run publishes queued events until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started")
	for {
		select {
		case ev := <-r.queue:
			r.publish(ctx, ev)
		case <-ctx.Done():
			r.logger.Info("relay stopped", zap.Int("pending", len(r.queue)))
			return nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, ev wizard.Event) {
	body, err := Encode(ev, r.source)
	if err != nil {
		r.logger.Error("failed to encode event", zap.String("event_id", ev.EventID), zap.Error(err))
		return
	}
	if err := r.publisher.Publish(ctx, string(ev.Type), body); err != nil {
		r.logger.Warn("failed to publish event", zap.String("event_id", ev.EventID), zap.Error(err))
	}
}
