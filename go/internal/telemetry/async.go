package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Writer persists or forwards a single event. Writers may block; wrap them
// in an AsyncSink before handing them to a sequencer.
type Writer interface {
	Write(ctx context.Context, event Event) error
}

// WriterFunc adapts a function to a Writer.
type WriterFunc func(ctx context.Context, event Event) error

func (f WriterFunc) Write(ctx context.Context, event Event) error { return f(ctx, event) }

type AsyncConfig struct {
	Name         string
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration
	WriteTimeout time.Duration
	DrainTimeout time.Duration
}

func DefaultAsyncConfig(name string) AsyncConfig {
	return AsyncConfig{
		Name:         name,
		BufferSize:   1024,
		MaxRetries:   3,
		RetryDelay:   200 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		DrainTimeout: 5 * time.Second,
	}
}

// AsyncStats is a point-in-time view of an AsyncSink's counters.
type AsyncStats struct {
	Name      string    `json:"name"`
	Recorded  uint64    `json:"recorded"`
	Written   uint64    `json:"written"`
	Dropped   uint64    `json:"dropped"`
	Failed    uint64    `json:"failed"`
	Pending   int       `json:"pending"`
	LastWrite time.Time `json:"last_write"`
}

// AsyncSink queues events in a bounded buffer and writes them from a single
// worker goroutine. When the buffer is full the event is dropped and
// counted; write errors are retried with a linear backoff and then logged.
type AsyncSink struct {
	writer Writer
	cfg    AsyncConfig
	queue  chan Event

	mu     sync.RWMutex
	closed bool

	recorded  atomic.Uint64
	written   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	lastWrite atomic.Int64
}

func NewAsyncSink(w Writer, cfg AsyncConfig) *AsyncSink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	return &AsyncSink{
		writer: w,
		cfg:    cfg,
		queue:  make(chan Event, cfg.BufferSize),
	}
}

func (s *AsyncSink) Record(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	s.recorded.Add(1)
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
		log.Warn().
			Str("sink", s.cfg.Name).
			Str("event_type", string(event.Type)).
			Str("session_id", event.SessionID.String()).
			Msg("telemetry queue full, dropping event")
	}
}

// Run writes queued events until ctx is cancelled or Close is called.
// Whatever is still queued at that point is drained with DrainTimeout.
func (s *AsyncSink) Run(ctx context.Context) {
	log.Info().Str("sink", s.cfg.Name).Int("buffer", s.cfg.BufferSize).Msg("telemetry sink started")
	for {
		select {
		case <-ctx.Done():
			s.drain()
			log.Info().Str("sink", s.cfg.Name).Msg("telemetry sink stopped")
			return
		case event, ok := <-s.queue:
			if !ok {
				log.Info().Str("sink", s.cfg.Name).Msg("telemetry sink closed")
				return
			}
			s.write(ctx, event)
		}
	}
}

// Close stops accepting events. A running Run loop writes what is left in
// the queue and returns.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

func (s *AsyncSink) Stats() AsyncStats {
	st := AsyncStats{
		Name:     s.cfg.Name,
		Recorded: s.recorded.Load(),
		Written:  s.written.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
		Pending:  len(s.queue),
	}
	if ns := s.lastWrite.Load(); ns > 0 {
		st.LastWrite = time.Unix(0, ns).UTC()
	}
	return st
}

func (s *AsyncSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			s.write(ctx, event)
		case <-ctx.Done():
			log.Warn().Str("sink", s.cfg.Name).Int("pending", len(s.queue)).Msg("drain timed out")
			return
		default:
			return
		}
	}
}

func (s *AsyncSink) write(ctx context.Context, event Event) {
	if err := s.writeWithRetry(ctx, event); err != nil {
		s.failed.Add(1)
		log.Error().
			Err(err).
			Str("sink", s.cfg.Name).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.Type)).
			Msg("failed to write telemetry event")
		return
	}
	s.written.Add(1)
	s.lastWrite.Store(time.Now().UnixNano())
}

func (s *AsyncSink) writeWithRetry(ctx context.Context, event Event) error {
	attempt := 0
	write := func() (struct{}, error) {
		attempt++
		wctx := ctx
		cancel := func() {}
		if s.cfg.WriteTimeout > 0 {
			wctx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout)
		}
		defer cancel()
		return struct{}{}, s.writer.Write(wctx, event)
	}
	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Str("sink", s.cfg.Name).
			Str("event_id", event.ID.String()).
			Msg("write failed, retrying")
	}

	opts := append(RetryOptions(s.cfg.MaxRetries, s.cfg.RetryDelay), backoff.WithNotify(notify))
	if _, err := backoff.Retry(ctx, write, opts...); err != nil {
		return fmt.Errorf("write failed after %d attempts: %w", attempt, err)
	}
	if attempt > 1 {
		log.Info().
			Int("attempt", attempt).
			Str("sink", s.cfg.Name).
			Str("event_id", event.ID.String()).
			Msg("write succeeded after retry")
	}
	return nil
}
