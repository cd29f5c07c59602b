package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsEveryHandlerAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("sink down")

	var calls []string
	d.Subscribe(EventCyclePublished, func(_ context.Context, e Event) error {
		calls = append(calls, "first:"+e.CycleID)
		return boom
	})
	d.Subscribe(EventCyclePublished, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.CycleID)
		return nil
	})
	d.Subscribe(EventCycleClosed, func(context.Context, Event) error {
		calls = append(calls, "closed")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventCyclePublished, CycleID: "c1"})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"first:c1", "second:c1"}, calls)
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventCycleRepublished}))
}
