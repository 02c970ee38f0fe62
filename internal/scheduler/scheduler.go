// Package scheduler fetches targets in fixed-size batches.
//
// Targets inside a batch run concurrently; batches never overlap. Outcomes
// are yielded in input order regardless of completion order, and a failed
// target is reported as an outcome rather than stopping the run.
package scheduler

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/repoctx/internal/events"
	"github.com/fyrsmithlabs/repoctx/internal/fetch"
	"github.com/fyrsmithlabs/repoctx/internal/logging"
)

// DefaultBatchSize is used when no positive batch size is configured.
const DefaultBatchSize = 10

// Fetcher is the part of a fetch session the scheduler needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Target is one file to fetch.
type Target struct {
	Path string
	URL  string
}

// Outcome is the result of fetching one target. Err is nil on success.
type Outcome struct {
	Content string
	Err     error
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Scheduler dispatches fetches batch by batch.
type Scheduler struct {
	session   Fetcher
	emitter   events.Emitter
	batchSize int
	logger    *logging.Logger
	limiter   *rate.Limiter
	tracer    trace.Tracer
	observer  prometheus.Observer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBatchSize sets the batch size. Values <= 0 select DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n <= 0 {
			n = DefaultBatchSize
		}
		s.batchSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLimiter paces individual requests. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// WithTracer sets the tracer used for per-batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBatchObserver records each batch's wall time in seconds.
func WithBatchObserver(o prometheus.Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// New creates a scheduler over session. A nil emitter discards events.
func New(session Fetcher, emitter events.Emitter, opts ...Option) *Scheduler {
	if emitter == nil {
		emitter = events.Discard
	}
	s := &Scheduler{
		session:   session,
		emitter:   emitter,
		batchSize: DefaultBatchSize,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer("repoctx/scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BatchSize returns the effective batch size.
func (s *Scheduler) BatchSize() int { return s.batchSize }

// Batches splits n items into half-open [start, end) ranges of at most
// batchSize items.
func Batches(n, batchSize int) [][2]int {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += batchSize {
		out = append(out, [2]int{start, min(start+batchSize, n)})
	}
	return out
}

// FetchAll returns a lazy sequence of outcomes in target order. Each batch is
// announced with a status event, dispatched, and awaited before any of its
// outcomes are yielded. Breaking out of the loop or cancelling ctx stops
// further batches.
func (s *Scheduler) FetchAll(ctx context.Context, targets []Target) iter.Seq2[Target, Outcome] {
	return func(yield func(Target, Outcome) bool) {
		total := len(targets)
		for _, b := range Batches(total, s.batchSize) {
			if ctx.Err() != nil {
				return
			}
			start, end := b[0], b[1]
			s.emitter.Emit(events.NewStatus("Processing files %d-%d of %d...", start+1, end, total))

			outcomes := s.runBatch(ctx, targets[start:end], start)

			for i, o := range outcomes {
				if !yield(targets[start+i], o) {
					return
				}
			}
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context, batch []Target, offset int) []Outcome {
	ctx, span := s.tracer.Start(ctx, "scheduler.batch", trace.WithAttributes(
		attribute.Int("batch.start", offset),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	began := time.Now()
	outcomes := make([]Outcome, len(batch))

	var g errgroup.Group
	for i, t := range batch {
		g.Go(func() error {
			outcomes[i] = s.fetchOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(began)
	if s.observer != nil {
		s.observer.Observe(elapsed.Seconds())
	}

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))
	s.logger.Debug(ctx, "batch complete",
		zap.Int("start", offset+1),
		zap.Int("size", len(batch)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", elapsed),
	)
	return outcomes
}

func (s *Scheduler) fetchOne(ctx context.Context, t Target) Outcome {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Outcome{Err: err}
		}
	}
	if s.session == nil {
		return Outcome{Err: errors.New("no fetch session")}
	}

	page, err := s.session.Fetch(ctx, t.URL)
	if err != nil {
		return Outcome{Err: err}
	}
	if err := page.Err(); err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Content: page.Body}
}
