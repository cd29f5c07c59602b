package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/evaluation-service/internal/events"
)

type recordingSink struct {
	mu       sync.Mutex
	received []events.EventType
	err      error
	deadline bool
}

func (s *recordingSink) HandleEvent(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, event.Type)
	_, s.deadline = ctx.Deadline()
	return s.err
}

func (s *recordingSink) snapshot() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.EventType(nil), s.received...)
}

type sinkFunc func(context.Context, events.Event) error

func (f sinkFunc) HandleEvent(ctx context.Context, e events.Event) error { return f(ctx, e) }

func stop(t *testing.T, w *SinkWorker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

func TestRegisterSinks_DeliversEveryLifecycleEventInOrder(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	sink := &recordingSink{}
	w := RegisterSinks(dispatcher, nil, time.Second, 8, NamedSink{Name: "rec", Sink: sink}, NamedSink{Name: "nil"})

	for _, eventType := range lifecycleEvents {
		require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: "e", Type: eventType, CycleID: "c1"}))
	}
	stop(t, w)

	require.Equal(t, lifecycleEvents, sink.snapshot())
	require.True(t, sink.deadline)
}

func TestRegisterSinks_SlowSinkDoesNotBlockPublisher(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	slow := sinkFunc(func(ctx context.Context, _ events.Event) error {
		entered <- struct{}{}
		<-release
		return nil
	})
	fast := &recordingSink{}
	w := RegisterSinks(dispatcher, nil, 0, 4, NamedSink{Name: "slow", Sink: slow}, NamedSink{Name: "fast", Sink: fast})

	start := time.Now()
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: "e1", Type: events.EventCyclePublished}))
	require.Less(t, time.Since(start), 100*time.Millisecond)

	<-entered
	require.Eventually(t, func() bool { return len(fast.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	stop(t, w)
}

func TestSinkWorker_FailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	dispatcher := events.NewInMemoryDispatcher()
	w := RegisterSinks(dispatcher, zap.New(core), 0, 1, NamedSink{Name: "kafka", Sink: &recordingSink{err: errors.New("broker down")}})

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: "e", Type: events.EventCyclePublished}))
	stop(t, w)

	entries := logs.FilterMessage("event sink failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "kafka", entries[0].ContextMap()["sink"])
	require.Equal(t, "broker down", entries[0].ContextMap()["error"])
}

func TestSinkWorker_DropsWhenQueueIsFull(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	sink := &recordingSink{}
	w := NewSinkWorker(nil, 0, 1, NamedSink{Name: "archive", Sink: sink})
	w.Subscribe(dispatcher)

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: "e1", Type: events.EventCyclePublished}))
	err := dispatcher.Publish(context.Background(), events.Event{ID: "e2", Type: events.EventCycleRepublished})
	require.ErrorIs(t, err, ErrQueueFull)
	require.Contains(t, err.Error(), "sink archive")

	w.Start()
	stop(t, w)
	require.Equal(t, []events.EventType{events.EventCyclePublished}, sink.snapshot())
}

func TestSinkWorker_IgnoresCanceledRequestContext(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	var (
		mu   sync.Mutex
		seen = errors.New("not delivered")
	)
	sink := sinkFunc(func(ctx context.Context, _ events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = ctx.Err()
		return nil
	})
	w := RegisterSinks(dispatcher, nil, time.Second, 1, NamedSink{Name: "f", Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{ID: "e", Type: events.EventCycleClosed}))
	stop(t, w)

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, seen)
}

func TestSinkWorker_RejectsEventsAfterStop(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	w := RegisterSinks(dispatcher, nil, 0, 1, NamedSink{Name: "rec", Sink: &recordingSink{}})
	stop(t, w)
	require.NoError(t, w.Stop(context.Background()))

	err := dispatcher.Publish(context.Background(), events.Event{ID: "e", Type: events.EventCyclePublished})
	require.ErrorIs(t, err, ErrWorkerStopped)
}
