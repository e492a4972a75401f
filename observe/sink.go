package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) error { return nil }

// MultiSink fans an event out to every sink. All sinks are attempted and
// their errors joined.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return NoopSink{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &MultiSink{sinks: filtered}
}

func (m *MultiSink) Emit(ctx context.Context, event Event) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const (
	defaultAsyncBuffer = 1024
	asyncWriteTimeout  = 5 * time.Second
	asyncDrainTimeout  = 2 * time.Second
)

// AsyncSink queues events for a background writer so the caller never
// waits on storage. Events are dropped when the queue is full.
type AsyncSink struct {
	downstream Sink
	logger     *zap.Logger
	queue      chan Event
	once       sync.Once
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsyncSink(downstream Sink, buffer int, logger *zap.Logger) *AsyncSink {
	if downstream == nil {
		downstream = NoopSink{}
	}
	if buffer <= 0 {
		buffer = defaultAsyncBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	as := &AsyncSink{
		downstream: downstream,
		logger:     logger,
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
	}
	go as.loop()
	return as
}

func (s *AsyncSink) Emit(_ context.Context, event Event) error {
	if s == nil {
		return nil
	}
	event.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.queue <- event:
	default:
		s.logger.Warn("telemetry queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("name", event.Name),
		)
	}
	return nil
}

// Close stops accepting events and waits, bounded, for queued events to
// be written.
func (s *AsyncSink) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
	case <-time.After(asyncDrainTimeout):
		s.logger.Warn("telemetry drain timed out", zap.Int("pending", len(s.queue)))
	}
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		if err := s.downstream.Emit(ctx, event); err != nil {
			s.logger.Warn("telemetry write failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Kind)),
				zap.Error(err),
			)
		}
		cancel()
	}
}
