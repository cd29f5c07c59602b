package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/evaluation-service/internal/events"
	"github.com/spec-kit/evaluation-service/internal/service"
)

const defaultQueueSize = 256

var (
	// ErrQueueFull is returned to the dispatcher when a sink lags behind and an event is dropped.
	ErrQueueFull = errors.New("sink queue full")
	// ErrWorkerStopped is returned for events published after Stop.
	ErrWorkerStopped = errors.New("sink worker stopped")
)

// Sink receives cycle lifecycle events after the publication transaction committed.
type Sink interface {
	HandleEvent(ctx context.Context, event events.Event) error
}

// NamedSink labels a sink in logs and errors.
type NamedSink struct {
	Name string
	Sink Sink
}

var lifecycleEvents = []events.EventType{
	events.EventCyclePublished,
	events.EventCycleRepublished,
	events.EventCycleClosed,
}

// StartAuditWorker registers audit log handlers.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}

// SinkWorker moves sink delivery off the publishing goroutine. Every sink owns a buffered
// queue drained by one goroutine, so a slow sink neither blocks the caller nor the other sinks,
// and events reach each sink in publication order.
type SinkWorker struct {
	logger  *zap.Logger
	timeout time.Duration
	queues  []*sinkQueue

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

type sinkQueue struct {
	sink NamedSink
	ch   chan events.Event
}

// NewSinkWorker builds a worker for sinks. Nil sinks are skipped. Call Start to begin delivery.
func NewSinkWorker(logger *zap.Logger, timeout time.Duration, queueSize int, sinks ...NamedSink) *SinkWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	w := &SinkWorker{logger: logger, timeout: timeout}
	for _, sink := range sinks {
		if sink.Sink == nil {
			continue
		}
		w.queues = append(w.queues, &sinkQueue{sink: sink, ch: make(chan events.Event, queueSize)})
	}
	return w
}

// RegisterSinks subscribes a started SinkWorker for sinks to every lifecycle event.
func RegisterSinks(dispatcher events.Dispatcher, logger *zap.Logger, timeout time.Duration, queueSize int, sinks ...NamedSink) *SinkWorker {
	w := NewSinkWorker(logger, timeout, queueSize, sinks...)
	w.Subscribe(dispatcher)
	w.Start()
	return w
}

// Subscribe registers the enqueueing handler for all lifecycle events.
func (w *SinkWorker) Subscribe(dispatcher events.Dispatcher) {
	if dispatcher == nil || len(w.queues) == 0 {
		return
	}
	for _, eventType := range lifecycleEvents {
		dispatcher.Subscribe(eventType, w.enqueue)
	}
	for _, q := range w.queues {
		w.logger.Info("event sink registered", zap.String("sink", q.sink.Name), zap.Int("queue_size", cap(q.ch)))
	}
}

// Start launches one delivery goroutine per sink. Calling it twice is a no-op.
func (w *SinkWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	for _, q := range w.queues {
		w.wg.Add(1)
		go w.drain(q)
	}
}

// Stop refuses new events and waits until the queued ones are delivered or ctx expires.
func (w *SinkWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for _, q := range w.queues {
		close(q.ch)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain event sinks: %w", ctx.Err())
	}
}

func (w *SinkWorker) enqueue(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrWorkerStopped
	}

	var errs []error
	for _, q := range w.queues {
		select {
		case q.ch <- event:
		default:
			w.logger.Warn("event sink queue full, dropping event",
				zap.String("sink", q.sink.Name),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
			errs = append(errs, fmt.Errorf("sink %s: %w", q.sink.Name, ErrQueueFull))
		}
	}
	return errors.Join(errs...)
}

func (w *SinkWorker) drain(q *sinkQueue) {
	defer w.wg.Done()
	for event := range q.ch {
		w.deliver(q.sink, event)
	}
}

func (w *SinkWorker) deliver(sink NamedSink, event events.Event) {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := sink.Sink.HandleEvent(ctx, event); err != nil {
		w.logger.Warn("event sink failed",
			zap.String("sink", sink.Name),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return
	}
	w.logger.Debug("event delivered",
		zap.String("sink", sink.Name),
		zap.String("event_id", event.ID),
		zap.Duration("took", time.Since(start)))
}
