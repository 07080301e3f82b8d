package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishToSubscribers(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe(nil)
	defer cancel()

	bus.Publish(Event{Message: "Chunking text..."})

	ev := <-ch
	assert.Equal(t, TypeProgress, ev.Type)
	assert.Equal(t, "Chunking text...", ev.Message)
}

func TestBus_PublishDoesNotBlockWithoutReaders(t *testing.T) {
	bus := NewBus(1)
	_, cancel := bus.Subscribe(nil)
	defer cancel()

	for i := 0; i < 100; i++ {
		bus.Publish(Event{Message: "tick"})
	}
}

func TestBus_NilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Message: "ignored"})
}

func TestBus_FilterByOp(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe(ForOp("req-1"))
	defer cancel()

	bus.Emit(WithOp(context.Background(), "req-2"), "other", 10)
	bus.Emit(WithOp(context.Background(), "req-1"), "mine", 50)

	ev := <-ch
	assert.Equal(t, "mine", ev.Message)
	assert.Equal(t, "req-1", ev.Op)
	assert.Equal(t, 50, ev.Percent)
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe(nil)
	require.Equal(t, 1, bus.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())

	bus.Publish(Event{Message: "after cancel"})
}

func TestOpFromContext_Missing(t *testing.T) {
	assert.Empty(t, OpFromContext(context.Background()))
}
