package workers

import (
	"context"
	"log/slog"

	"chat-core/domain/event"
	"chat-core/observability"
)

// Telemetry drains the dispatcher's event copy off the publish path, logs
// a structured line per event and feeds the monitor's counters. It is an
// observer only: losing events here has no effect on delivery.
type Telemetry struct {
	Log     *slog.Logger
	Events  <-chan event.Event
	Monitor *observability.Monitor
}

func NewTelemetry(log *slog.Logger, events <-chan event.Event, monitor *observability.Monitor) *Telemetry {
	return &Telemetry{Log: log, Events: events, Monitor: monitor}
}

func (w *Telemetry) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.Events:
			if w.Monitor != nil {
				w.Monitor.EventPublished()
			}
			w.Log.Debug("event published", "event", evt.Name(), "channel", evt.Channel())
		case <-ctx.Done():
			return nil
		}
	}
}
