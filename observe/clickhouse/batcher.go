package clickhouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// batcher buffers items and hands them to flush in batches from a single
// background goroutine. Add never blocks; items are dropped when full.
type batcher[T any] struct {
	name    string
	buffer  chan T
	done    chan struct{}
	flushed chan struct{}
	flush   func([]T)
	logger  *zap.Logger

	interval time.Duration
	size     int

	mu     sync.RWMutex
	closed bool
}

func newBatcher[T any](name string, flush func([]T), logger *zap.Logger) *batcher[T] {
	return &batcher[T]{
		name:     name,
		buffer:   make(chan T, bufferSize),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
		flush:    flush,
		logger:   logger,
		interval: flushInterval,
		size:     flushBatch,
	}
}

func (b *batcher[T]) start() *batcher[T] {
	go b.loop()
	return b
}

func (b *batcher[T]) add(item T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.buffer <- item:
		return true
	default:
		b.logger.Warn("clickhouse buffer full, dropping row", zap.String("table", b.name))
		return false
	}
}

// close stops intake and waits for buffered rows to be flushed.
func (b *batcher[T]) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.flushed
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
	<-b.flushed
}

func (b *batcher[T]) loop() {
	defer close(b.flushed)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]T, 0, b.size)
	for {
		select {
		case item := <-b.buffer:
			batch = append(batch, item)
			if len(batch) >= b.size {
				b.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = batch[:0]
			}
		case <-b.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case item := <-b.buffer:
					batch = append(batch, item)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				b.flush(batch)
			}
			return
		}
	}
}
