// Package observability aggregates hub counters for logging and the
// debug UI. Counters are atomic so hot paths never take a lock.
package observability

import (
	"chat-hub/domain/event"
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// HubStats is the snapshot served to the debug UI.
type HubStats struct {
	ActiveConnections int64   `json:"active_connections"`
	TotalConnections  uint64  `json:"total_connections"`
	MessagesRouted    uint64  `json:"messages_routed"`
	PrivateMessages   uint64  `json:"private_messages"`
	HistoryReplays    uint64  `json:"history_replays"`
	DroppedCommands   uint64  `json:"dropped_commands"`
	StorageFaults     uint64  `json:"storage_faults"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	NumGC             uint32  `json:"num_gc"`
	QueueLength       int     `json:"queue_length"`
	QueueCapacity     int     `json:"queue_capacity"`
}

// MonitoringManager tracks hub activity in real time.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats HubStats

	activeConnections int64
	totalConnections  uint64
	messagesRouted    uint64
	privateMessages   uint64
	historyReplays    uint64
	droppedCommands   uint64
	storageFaults     uint64
	windowMessages    uint64
	lastCheck         time.Time

	queueStats func() (length, capacity int)
}

func NewMonitoringManager(log *slog.Logger, queueStats func() (int, int)) *MonitoringManager {
	return &MonitoringManager{
		log:        log,
		lastCheck:  time.Now(),
		queueStats: queueStats,
	}
}

func (mm *MonitoringManager) ConnectionOpened() {
	atomic.AddInt64(&mm.activeConnections, 1)
	atomic.AddUint64(&mm.totalConnections, 1)
}

func (mm *MonitoringManager) ConnectionClosed() {
	atomic.AddInt64(&mm.activeConnections, -1)
}

func (mm *MonitoringManager) MessageRouted() {
	atomic.AddUint64(&mm.messagesRouted, 1)
	atomic.AddUint64(&mm.windowMessages, 1)
}

func (mm *MonitoringManager) PrivateMessageSent() {
	atomic.AddUint64(&mm.privateMessages, 1)
}

func (mm *MonitoringManager) HistoryReplayed() {
	atomic.AddUint64(&mm.historyReplays, 1)
}

func (mm *MonitoringManager) CommandDropped() {
	atomic.AddUint64(&mm.droppedCommands, 1)
}

func (mm *MonitoringManager) StorageFault() {
	atomic.AddUint64(&mm.storageFaults, 1)
}

// Handle feeds the routing counters from the telemetry stream. Registered
// alongside the other telemetry handlers so the router never has to know
// about this package.
func (mm *MonitoringManager) Handle(e event.Event) {
	switch e.Type {
	case event.MessageRoutedType:
		mm.MessageRouted()
	case event.PrivateRoutedType:
		mm.PrivateMessageSent()
	case event.HistoryReplayedType:
		mm.HistoryReplayed()
	case event.CommandDroppedType:
		mm.CommandDropped()
	case event.StorageFaultType:
		mm.StorageFault()
	}
}

// Listen refreshes the snapshot on a fixed interval until the context is
// canceled.
func (mm *MonitoringManager) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Info("Monitoring manager stopped")
			return
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	duration := now.Sub(mm.lastCheck).Seconds()

	if duration > 0 {
		window := atomic.SwapUint64(&mm.windowMessages, 0)
		mm.latestStats.MessagesPerSecond = float64(window) / duration
	}
	mm.lastCheck = now

	mm.latestStats.ActiveConnections = atomic.LoadInt64(&mm.activeConnections)
	mm.latestStats.TotalConnections = atomic.LoadUint64(&mm.totalConnections)
	mm.latestStats.MessagesRouted = atomic.LoadUint64(&mm.messagesRouted)
	mm.latestStats.PrivateMessages = atomic.LoadUint64(&mm.privateMessages)
	mm.latestStats.HistoryReplays = atomic.LoadUint64(&mm.historyReplays)
	mm.latestStats.DroppedCommands = atomic.LoadUint64(&mm.droppedCommands)
	mm.latestStats.StorageFaults = atomic.LoadUint64(&mm.storageFaults)

	if mm.queueStats != nil {
		mm.latestStats.QueueLength, mm.latestStats.QueueCapacity = mm.queueStats()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC

	mm.log.Debug("Stats refreshed",
		"active_connections", mm.latestStats.ActiveConnections,
		"messages_routed", mm.latestStats.MessagesRouted,
		"messages_per_second", mm.latestStats.MessagesPerSecond,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

func (mm *MonitoringManager) GetLatest() HubStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
