package listeners

import (
	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/pkg/events"
	"github.com/echoline-ai/echoline/pkg/metrics"
)

// RegisterMetricsListeners keeps the Prometheus gauges in step with
// the call pipeline's events.
func RegisterMetricsListeners(bus *events.Bus) {
	bus.Subscribe(events.EventCallCreated, func(e events.Event) error {
		metrics.ActiveSessions.Inc()
		return nil
	})
	bus.Subscribe(events.EventCallEnded, func(e events.Event) error {
		metrics.ActiveSessions.Dec()
		return nil
	})
	bus.Subscribe(events.EventSessionReaped, func(e events.Event) error {
		metrics.SessionsReaped.Inc()
		// Sessions that aged out mid-call never saw a call.ended event.
		if status, _ := e.Data["status"].(string); status != session.StatusEnded {
			metrics.ActiveSessions.Dec()
		}
		return nil
	})
}
