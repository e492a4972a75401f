package eval

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/observe"
)

// Recorder persists live eval results. observe/store.Store and the
// ClickHouse writer both satisfy it.
type Recorder interface {
	SaveEvalResult(ctx context.Context, result observe.EvalResult) error
}

type RecorderFunc func(ctx context.Context, result observe.EvalResult) error

func (f RecorderFunc) SaveEvalResult(ctx context.Context, result observe.EvalResult) error {
	return f(ctx, result)
}

// MultiRecorder writes to every recorder and joins their errors.
func MultiRecorder(recorders ...Recorder) Recorder {
	return RecorderFunc(func(ctx context.Context, r observe.EvalResult) error {
		var errs []error
		for _, rec := range recorders {
			if rec == nil {
				continue
			}
			errs = append(errs, rec.SaveEvalResult(ctx, r))
		}
		return errors.Join(errs...)
	})
}

const (
	defaultWriterBuffer = 1024
	writerTimeout       = 5 * time.Second
	writerDrainTimeout  = 2 * time.Second
)

// Writer decouples scoring from storage. SaveEvalResult enqueues and
// returns at once; a background goroutine writes to the downstream
// recorder. Results are dropped, with a warning, when the queue is full.
type Writer struct {
	downstream Recorder
	logger     *zap.Logger
	queue      chan observe.EvalResult
	once       sync.Once
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewWriter(downstream Recorder, buffer int, logger *zap.Logger) *Writer {
	if buffer <= 0 {
		buffer = defaultWriterBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		downstream: downstream,
		logger:     logger,
		queue:      make(chan observe.EvalResult, buffer),
		done:       make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) SaveEvalResult(_ context.Context, result observe.EvalResult) error {
	result.Normalize()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil
	}
	select {
	case w.queue <- result:
	default:
		w.logger.Warn("eval queue full, dropping result",
			zap.String("scorer_id", result.ScorerID),
			zap.String("conversation_id", result.ConversationID),
		)
	}
	return nil
}

// Close stops intake and waits, bounded, for queued results to be written.
func (w *Writer) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
	select {
	case <-w.done:
	case <-time.After(writerDrainTimeout):
		w.logger.Warn("eval drain timed out", zap.Int("pending", len(w.queue)))
	}
}

func (w *Writer) loop() {
	defer close(w.done)
	for result := range w.queue {
		if w.downstream == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writerTimeout)
		if err := w.downstream.SaveEvalResult(ctx, result); err != nil {
			w.logger.Warn("eval result write failed",
				zap.String("scorer_id", result.ScorerID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
