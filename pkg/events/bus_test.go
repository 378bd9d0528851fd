package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesTypeAndWildcardHandlers(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var got []string

	record := func(label string) EventHandler {
		return func(e Event) error {
			mu.Lock()
			got = append(got, label)
			mu.Unlock()
			return nil
		}
	}
	bus.Subscribe(EventCallCreated, record("typed"))
	bus.Subscribe("*", record("wildcard"))

	bus.Emit(EventCallCreated, "test", nil)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPublishSetsTimestamp(t *testing.T) {
	bus := NewBus()
	done := make(chan Event, 1)
	bus.Subscribe(EventCallEnded, func(e Event) error {
		done <- e
		return nil
	})

	bus.Publish(Event{Type: EventCallEnded})

	select {
	case e := <-done:
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}
