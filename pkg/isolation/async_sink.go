package isolation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

// BatchWriter persists violations in bulk. Implementations should write a
// batch atomically where the backend allows it.
type BatchWriter interface {
	WriteBatch(ctx context.Context, violations []Violation) error
}

// AsyncOptions configures buffering and batching of an AsyncSink.
type AsyncOptions struct {
	BufferSize     int           // Max violations queued before writes fall back to synchronous
	BatchSize      int           // Violations per batch
	BatchTimeout   time.Duration // Max time a partial batch waits before it is flushed
	StorageTimeout time.Duration // Per-batch write timeout
	Logger         *slog.Logger
}

// AsyncSink is a Sink that hands violations to a BatchWriter from a
// background goroutine, so recording a violation never waits on storage
// unless the buffer is full.
type AsyncSink struct {
	writer  BatchWriter
	queue   chan Violation
	done    chan struct{}
	wg      sync.WaitGroup
	options AsyncOptions
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewAsyncSink starts a sink writing to bw.
func NewAsyncSink(bw BatchWriter, opts AsyncOptions) *AsyncSink {
	if bw == nil {
		panic("isolation: batch writer cannot be nil")
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = time.Second
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &AsyncSink{
		writer:  bw,
		queue:   make(chan Violation, opts.BufferSize),
		done:    make(chan struct{}),
		options: opts,
		logger:  opts.Logger.With(logger.Component("isolation.sink")),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Write implements Sink. When the buffer is full the violation is written
// synchronously rather than dropped.
func (s *AsyncSink) Write(ctx context.Context, v Violation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.queue <- v:
		return nil
	default:
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.StorageTimeout)
		defer cancel()
		return s.writer.WriteBatch(ctx, []Violation{v})
	}
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()

	batch := make([]Violation, 0, s.options.BatchSize)
	ticker := time.NewTicker(s.options.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		// Detached from request contexts so a finished request cannot cancel the write.
		ctx, cancel := context.WithTimeout(context.Background(), s.options.StorageTimeout)
		defer cancel()

		if err := s.writer.WriteBatch(ctx, batch); err != nil {
			s.logger.ErrorContext(ctx, "failed to write isolation violations",
				slog.Int("count", len(batch)),
				logger.Error(err),
			)
		}

		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case v := <-s.queue:
			batch = append(batch, v)
			if len(batch) >= s.options.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.done:
			for {
				select {
				case v := <-s.queue:
					batch = append(batch, v)
					if len(batch) >= s.options.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting violations and flushes what is queued. The context
// bounds how long Close waits for the flush. It is safe to call more than once.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
