package workers

import (
	"chat-hub/domain/event"
	"context"
	"log/slog"
	"time"
)

// NamedQueue exposes the fill level of one internal queue without handing
// out the channel itself.
type NamedQueue struct {
	Name  string
	Stats func() (length, capacity int)
}

// ChannelCapacityWorker periodically samples queue fill levels. Reading
// len and cap is non-blocking so this never interferes with routing. The
// occasional lost sample is fine, metrics are periodic anyway.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	queues         []NamedQueue
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	queues []NamedQueue, telemetryChan chan event.Event,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		queues:         queues,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			for _, q := range w.queues {
				length, capacity := q.Stats()
				select {
				case <-ctx.Done():
					return nil
				case w.telemetryChan <- toCapacityEvent(q.Name, capacity, length):
				default:
					w.log.Debug("Capacity telemetry event lost")
				}
			}
		}
	}
}

func toCapacityEvent(name string, capacity, length int) event.Event {
	return event.Event{
		Type:      event.ChannelCapacityType,
		CreatedAt: time.Now().UTC(),
		Payload: event.ChannelCapacity{
			ChannelName: name,
			Capacity:    capacity,
			Length:      length,
		},
	}
}
