package event

import (
	"chat-hub/errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler Each kind of telemetry event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event Event)
}

// LatencyHandler tracks the time between a message entering the router and
// its fan-out completing.
type LatencyHandler struct {
	log              *slog.Logger
	latencyThreshold time.Duration
}

func NewLatencyHandler(log *slog.Logger, latencyThreshold time.Duration) *LatencyHandler {
	return &LatencyHandler{log: log, latencyThreshold: latencyThreshold}
}

func (h *LatencyHandler) Handle(e Event) {
	if e.Type != MessageRoutedType {
		return
	}
	payload, ok := e.Payload.(MessageRouted)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}

	leadTime := time.Since(payload.ReceivedAt)
	h.log.Debug("telemetry: routing latency",
		"room", payload.Room,
		"author", payload.Author,
		"recipients", payload.Recipients,
		"lead_time_ms", leadTime.Milliseconds(),
	)

	if leadTime > h.latencyThreshold {
		h.log.Warn("high routing latency detected", "lead_time", leadTime)
	}
}

// ChannelCapacityHandler handles events reporting the capacity of channels.
// Useful for observability, detecting backpressure, and avoiding message drops.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{log: log, lowCapacityThreshold: lowCapacityThreshold}
}

func (h ChannelCapacityHandler) Handle(e Event) {
	if e.Type != ChannelCapacityType {
		return
	}
	payload, ok := e.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.log.Debug(fmt.Sprintf("Channel %s usage: %d / %d", payload.ChannelName, payload.Length, payload.Capacity))
	if payload.Capacity <= 0 {
		// In case of unbuffered channel
		return
	}
	capacityLeft := payload.Capacity - payload.Length
	if capacityLeft > 0 && capacityLeft <= h.lowCapacityThreshold {
		h.log.Warn(fmt.Sprintf("command channel capacity left : %d", capacityLeft))
	}
}

// WorkerRestartedAfterPanicHandler is triggered by the Supervisor when a
// worker recovers from a panic. Useful for monitoring reliability.
type WorkerRestartedAfterPanicHandler struct {
	log     *slog.Logger
	mu      sync.Mutex
	counter *Counter
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{log: log, counter: counter}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(e Event) {
	if e.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := e.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counter.Increment(RestartedAfterPanicType)
	h.log.Debug(fmt.Sprintf("Worker %s restarted after panic, total: %d",
		payload.WorkerName, h.counter.Get(RestartedAfterPanicType)))
}
