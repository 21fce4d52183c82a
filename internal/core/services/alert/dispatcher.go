package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/telemetry"
)

// RecentLimit caps the persisted alert feed served to the dashboard.
const RecentLimit = 50

// Dispatcher decouples alert producers from persistence and fan-out.
// Emit enqueues without blocking; a single drain goroutine persists each
// alert and hands it to the attached broadcaster. Overflow drops the event
// with a log line rather than stalling an authentication path.
type Dispatcher struct {
	store ports.AlertStore
	ch    chan domain.Alert

	mu        sync.RWMutex
	broadcast func(domain.Alert)
}

// NewDispatcher creates a dispatcher with the given queue depth.
func NewDispatcher(store ports.AlertStore, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		store: store,
		ch:    make(chan domain.Alert, buffer),
	}
}

// SetBroadcast attaches the live feed fan-out, typically the websocket hub.
func (d *Dispatcher) SetBroadcast(fn func(domain.Alert)) {
	d.mu.Lock()
	d.broadcast = fn
	d.mu.Unlock()
}

// Emit implements ports.AlertSink.
func (d *Dispatcher) Emit(eventType domain.AlertType, details string) {
	a := domain.Alert{
		EventType: eventType,
		Details:   details,
		Timestamp: time.Now(),
	}
	select {
	case d.ch <- a:
	default:
		slog.Warn("alert queue full, dropping event", "event_type", eventType)
	}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.ch:
			if err := d.store.AppendAlert(ctx, a); err != nil {
				slog.Warn("alert persist failed", "event_type", a.EventType, "error", err)
			}
			telemetry.AlertsEmitted.WithLabelValues(string(a.EventType)).Inc()
			d.mu.RLock()
			fn := d.broadcast
			d.mu.RUnlock()
			if fn != nil {
				fn(a)
			}
		}
	}
}

// Recent returns the newest persisted alerts.
func (d *Dispatcher) Recent(ctx context.Context) ([]domain.Alert, error) {
	return d.store.RecentAlerts(ctx, RecentLimit)
}
