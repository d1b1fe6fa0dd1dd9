package span

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/apmcore/observe"
)

// DefaultAsyncBuffer is the queue length used when NewAsyncSink gets a non-positive size.
const DefaultAsyncBuffer = 1024

// AsyncSink moves export off the request path. Records are queued and forwarded to
// the next Sink by a single goroutine. When the queue is full the record is dropped
// and counted. A panic in the next Sink is recovered per record, logged and counted,
// and forwarding continues with the following record.
type AsyncSink struct {
	next   Sink
	logger observe.Logger
	ch     chan Record
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped  atomic.Uint64
	panicked atomic.Uint64
}

// NewAsyncSink starts forwarding to next. A nil logger discards panic reports.
func NewAsyncSink(next Sink, size int, logger observe.Logger) *AsyncSink {
	if size <= 0 {
		size = DefaultAsyncBuffer
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	s := &AsyncSink{
		next:   next,
		logger: logger,
		ch:     make(chan Record, size),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.ch {
		s.forward(rec)
	}
}

func (s *AsyncSink) forward(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			s.panicked.Add(1)
			s.logger.Error(context.Background(), "record sink panicked",
				observe.F("panic", r), observe.F("service", rec.Service))
		}
	}()
	s.next.Export(rec)
}

// Export queues rec without blocking.
func (s *AsyncSink) Export(rec Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- rec:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of records discarded because the queue was full or
// the sink was closed.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Panicked returns the number of records whose forwarding panicked.
func (s *AsyncSink) Panicked() uint64 {
	return s.panicked.Load()
}

// Close stops accepting records and waits for queued ones to be forwarded.
// It returns ctx.Err() if ctx ends first; forwarding continues in the background.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
