package events

import (
	"sync"
	"time"

	"github.com/echoline-ai/echoline/pkg/logger"
	"go.uber.org/zap"
)

// Event types emitted by the call pipeline.
const (
	EventCallCreated   = "call.created"
	EventCallAnswered  = "call.answered"
	EventCallEnded     = "call.ended"
	EventTurnProcessed = "call.turn"
	EventModelFallback = "model.fallback"
	EventSessionReaped = "session.reaped"
)

// Event is a notification about something that happened in the pipeline.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
}

// EventHandler receives published events. Handlers run asynchronously and
// must not assume ordering across events.
type EventHandler func(event Event) error

// Bus is a minimal in-process publish/subscribe hub. Subscribing to "*"
// receives every event.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers an event to all matching handlers, each on its own
// goroutine so a slow listener never stalls the call path.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := append([]EventHandler{}, b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h EventHandler) {
			if err := h(event); err != nil {
				logger.Error("Event handler failed",
					zap.String("eventType", event.Type),
					zap.Error(err))
			}
		}(handler)
	}
}

// Emit is a convenience wrapper around Publish.
func (b *Bus) Emit(eventType, source string, data map[string]interface{}) {
	b.Publish(Event{Type: eventType, Source: source, Data: data})
}
