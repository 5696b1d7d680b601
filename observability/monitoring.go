package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Stats aggregates the delivery metrics exposed to diagnostics.
type Stats struct {
	EventsPublished uint64  `json:"events_published"`
	EventRate       float64 `json:"event_rate"` // events/s since the last tick
	Connections     uint64  `json:"connections"`
	Subscriptions   uint64  `json:"subscriptions"`

	AllocMemMb uint64 `json:"alloc_mem_mb"`
	NumGC      uint32 `json:"num_gc"`
}

// Monitor collects delivery counters off the hot path. Writers touch
// atomics only; aggregation happens on the ticker inside Run. It
// implements the worker contract so the supervisor owns its lifecycle.
type Monitor struct {
	log      *slog.Logger
	interval time.Duration

	eventsPublished uint64
	windowEvents    uint64
	connections     int64
	subscriptions   int64

	mu        sync.RWMutex
	latest    Stats
	lastCheck time.Time
}

func NewMonitor(log *slog.Logger, interval time.Duration) *Monitor {
	return &Monitor{log: log, interval: interval, lastCheck: time.Now()}
}

func (m *Monitor) EventPublished() {
	atomic.AddUint64(&m.eventsPublished, 1)
	atomic.AddUint64(&m.windowEvents, 1)
}

func (m *Monitor) ConnectionOpened() { atomic.AddInt64(&m.connections, 1) }
func (m *Monitor) ConnectionClosed() { atomic.AddInt64(&m.connections, -1) }

func (m *Monitor) Subscribed()   { atomic.AddInt64(&m.subscriptions, 1) }
func (m *Monitor) Unsubscribed() { atomic.AddInt64(&m.subscriptions, -1) }

func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.updateStats()
		}
	}
}

func (m *Monitor) updateStats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	duration := now.Sub(m.lastCheck).Seconds()
	m.lastCheck = now

	window := atomic.SwapUint64(&m.windowEvents, 0)
	if duration > 0 {
		m.latest.EventRate = float64(window) / duration
	}
	m.latest.EventsPublished = atomic.LoadUint64(&m.eventsPublished)
	m.latest.Connections = clampCounter(atomic.LoadInt64(&m.connections))
	m.latest.Subscriptions = clampCounter(atomic.LoadInt64(&m.subscriptions))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.latest.AllocMemMb = mem.Alloc / 1024 / 1024
	m.latest.NumGC = mem.NumGC

	m.log.Debug("delivery stats",
		"events_published", m.latest.EventsPublished,
		"event_rate", m.latest.EventRate,
		"connections", m.latest.Connections,
		"subscriptions", m.latest.Subscriptions,
		"mem_mb", m.latest.AllocMemMb,
	)
}

func (m *Monitor) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// clampCounter guards against transient negative reads when an unsubscribe
// races ahead of its subscribe.
func clampCounter(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
