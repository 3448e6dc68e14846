package bus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishReachesSubscribers(t *testing.T) {
	b := NewEventBus()
	got := make(chan Event, 1)
	b.Subscribe(EventTypeLipSyncStarted, func(e Event) { got <- e })

	b.Publish(Event{Type: EventTypeLipSyncStarted, Data: map[string]any{"rate": 30}})

	select {
	case e := <-got:
		assert.Equal(t, EventTypeLipSyncStarted, e.Type)
		assert.Equal(t, 30, e.Data["rate"])
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestEventBus_PublishSyncWaitsForHandlers(t *testing.T) {
	b := NewEventBus()
	var ran atomic.Int32
	b.Subscribe(EventTypeLipSyncStopped, func(Event) {
		time.Sleep(20 * time.Millisecond)
		ran.Add(1)
	})
	b.Subscribe(EventTypeLipSyncStopped, func(Event) { ran.Add(1) })

	b.PublishSync(Event{Type: EventTypeLipSyncStopped})
	assert.Equal(t, int32(2), ran.Load(), "PublishSync returns only after every handler ran")
}

func TestEventBus_SubscribeMultiple(t *testing.T) {
	b := NewEventBus()
	var hits atomic.Int32
	b.SubscribeMultiple([]EventType{EventTypeRigConnected, EventTypeRigDisconnected}, func(Event) {
		hits.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeRigConnected})
	b.PublishSync(Event{Type: EventTypeRigDisconnected})
	require.Equal(t, int32(2), hits.Load())
}

func TestEventBus_ClearDropsHandlers(t *testing.T) {
	b := NewEventBus()
	var hits atomic.Int32
	b.Subscribe(EventTypeBindingResolved, func(Event) { hits.Add(1) })

	b.PublishSync(Event{Type: EventTypeBindingResolved})
	require.Equal(t, int32(1), hits.Load())

	b.Clear()
	b.PublishSync(Event{Type: EventTypeBindingResolved})
	assert.Equal(t, int32(1), hits.Load(), "cleared handlers no longer fire")
}
