// Package pipeline turns a repository URL into a persisted context document.
//
// A run walks Init → ListingFetch → Filtering → BatchFetch → Assembling →
// Persisted, or stops in Aborted. Progress is reported through an
// events.Emitter and every run ends with exactly one terminal event: DONE
// on success, ERROR otherwise. Per-file fetch failures are warnings and do
// not abort the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/repoctx/internal/artifact"
	"github.com/fyrsmithlabs/repoctx/internal/assembler"
	"github.com/fyrsmithlabs/repoctx/internal/events"
	"github.com/fyrsmithlabs/repoctx/internal/fetch"
	"github.com/fyrsmithlabs/repoctx/internal/filter"
	"github.com/fyrsmithlabs/repoctx/internal/logging"
	"github.com/fyrsmithlabs/repoctx/internal/reporef"
	"github.com/fyrsmithlabs/repoctx/internal/scheduler"
	"github.com/fyrsmithlabs/repoctx/internal/secrets"
)

// DefaultPageTimeout bounds the listing fetch.
const DefaultPageTimeout = 30 * time.Second

// Result summarizes a run.
type Result struct {
	RunID string
	Repo  reporef.Reference
	// Artifact is the saved document's name; empty unless persisted.
	Artifact string
	// Files is the number of paths selected for fetching.
	Files      int
	Fetched    int
	Failed     int
	Redactions int
	Bytes      int
	FinalState State
	Duration   time.Duration
}

// Orchestrator runs the pipeline. It holds no per-run state and may run
// several repositories concurrently.
type Orchestrator struct {
	provider    fetch.Provider
	store       artifact.Store
	filter      *filter.Filter
	batchSize   int
	pageTimeout time.Duration
	scrubber    secrets.Scrubber
	logger      *logging.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	limiter     *rate.Limiter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFilter replaces the default path filter.
func WithFilter(f *filter.Filter) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.filter = f
		}
	}
}

// WithBatchSize sets how many files are fetched concurrently.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) { o.batchSize = n }
}

// WithPageTimeout bounds the listing fetch. Non-positive values select
// DefaultPageTimeout.
func WithPageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pageTimeout = d
		}
	}
}

// WithScrubber redacts secrets from each fetched file before assembly.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scrubber = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records run and file counters.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer for run, listing and batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLimiter paces file requests.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// New creates an orchestrator.
func New(provider fetch.Provider, store artifact.Store, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.New("fetch provider is required")
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	o := &Orchestrator{
		provider:    provider,
		store:       store,
		filter:      filter.Default(),
		batchSize:   scheduler.DefaultBatchSize,
		pageTimeout: DefaultPageTimeout,
		scrubber:    secrets.Noop{},
		logger:      logging.NewNop(),
		tracer:      otel.Tracer("repoctx/pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run carries the state of one Run call.
type run struct {
	o       *Orchestrator
	emitter events.Emitter
	res     *Result
	span    trace.Span
	outcome string
}

// Run executes the pipeline for rawURL, reporting progress to emitter. The
// returned error matches the terminal ERROR event and wraps one of the
// package sentinels, or is a *reporef.MalformedReferenceError.
func (o *Orchestrator) Run(ctx context.Context, rawURL string, emitter events.Emitter) (*Result, error) {
	if emitter == nil {
		emitter = events.Discard
	}
	started := time.Now()
	r := &run{
		o:       o,
		emitter: emitter,
		res:     &Result{RunID: uuid.NewString(), FinalState: StateInit},
	}

	ctx = logging.WithRunID(ctx, r.res.RunID)
	ctx, r.span = o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", r.res.RunID),
		attribute.String("repo.input", rawURL),
	))
	defer func() {
		r.res.Duration = time.Since(started)
		o.metrics.recordRun(r.outcome, r.res.Duration)
		r.span.SetAttributes(
			attribute.String("run.outcome", r.outcome),
			attribute.Int("run.files", r.res.Files),
			attribute.Int("run.fetched", r.res.Fetched),
			attribute.Int("run.failed", r.res.Failed),
		)
		r.span.End()
	}()

	err := r.execute(ctx, rawURL)
	return r.res, err
}

func (r *run) execute(ctx context.Context, rawURL string) error {
	o := r.o

	ref, err := reporef.Parse(rawURL)
	if err != nil {
		var mre *reporef.MalformedReferenceError
		reason := err.Error()
		if errors.As(err, &mre) {
			reason = mre.Reason
		}
		return r.abort(ctx, OutcomeInvalid, err, "Invalid repository URL: %s", reason)
	}
	r.res.Repo = ref
	r.span.SetAttributes(attribute.String("repo.url", ref.URL()))
	o.logger.Info(ctx, "run started", zap.String("repo", ref.URL()))
	r.emitter.Emit(events.NewStatus("Starting repository scan..."))

	session, err := o.provider.Acquire(ctx)
	if err != nil {
		return r.abort(ctx, OutcomeSession, fmt.Errorf("%w: %w", ErrSession, err),
			"Failed to start fetch session: %v", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			o.logger.Warn(ctx, "closing fetch session", zap.Error(cerr))
		}
	}()

	// ListingFetch
	r.res.FinalState = StateListingFetch
	r.emitter.Emit(events.NewStatus("Fetching file list from %s...", ref.URL()))
	page, err := r.fetchListing(ctx, session, ref)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(ctx)
		}
		return r.abort(ctx, OutcomeListing, fmt.Errorf("%w: %w", ErrListing, err),
			"Failed to crawl repo: %v", err)
	}

	// Filtering
	r.res.FinalState = StateFiltering
	candidates := make([]string, 0, len(page.Links))
	for _, link := range page.Links {
		if p, ok := ref.BlobPath(link); ok {
			candidates = append(candidates, p)
		}
	}
	selected := o.filter.Select(candidates)
	r.res.Files = len(selected)
	o.logger.Debug(ctx, "listing filtered",
		zap.Int("links", len(page.Links)),
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(selected)),
	)
	if len(selected) == 0 {
		return r.abort(ctx, OutcomeNoFiles, ErrNoFiles,
			"No relevant files found. Is this a public repository?")
	}
	r.emitter.Emit(events.NewStatus("Found %d code files.", len(selected)))

	targets := make([]scheduler.Target, 0, len(selected))
	for _, p := range selected {
		u, err := ref.RawURL(p)
		if err != nil {
			r.warn(ctx, p, err.Error())
			continue
		}
		targets = append(targets, scheduler.Target{Path: p, URL: u})
	}

	// BatchFetch / Assembling
	r.res.FinalState = StateBatchFetch
	doc := assembler.New()
	sched := scheduler.New(session, r.emitter,
		scheduler.WithBatchSize(o.batchSize),
		scheduler.WithLogger(o.logger),
		scheduler.WithLimiter(o.limiter),
		scheduler.WithTracer(o.tracer),
		scheduler.WithBatchObserver(o.metrics.batchObserver()),
	)
	for target, outcome := range sched.FetchAll(ctx, targets) {
		if !outcome.OK() {
			r.warn(ctx, target.Path, outcome.Err.Error())
			continue
		}
		r.res.FinalState = StateAssembling
		content := outcome.Content
		if o.scrubber.Enabled() {
			scrubbed := o.scrubber.Scrub(content)
			content = scrubbed.Scrubbed
			if n := scrubbed.Count(); n > 0 {
				r.res.Redactions += n
				o.metrics.redacted(n)
				o.logger.Info(ctx, "secrets redacted",
					zap.String("path", target.Path),
					zap.String("rules", scrubbed.Summary()),
				)
			}
		}
		doc.Append(target.Path, content)
		r.res.Fetched++
		o.metrics.fileFetched()
		r.emitter.Emit(events.NewProgress(target.Path))
	}

	if ctx.Err() != nil {
		return r.cancelled(ctx)
	}

	// Persisted
	r.res.FinalState = StateAssembling
	name := ref.ArtifactName()
	r.res.Bytes = doc.Size()
	if err := o.store.Save(ctx, name, doc.Bytes()); err != nil {
		return r.abort(ctx, OutcomePersist, fmt.Errorf("%w: %w", ErrPersist, err),
			"Failed to write artifact: %v", err)
	}

	r.res.Artifact = name
	r.res.FinalState = StatePersisted
	r.outcome = OutcomeDone
	o.logger.Info(ctx, "run complete",
		zap.String("artifact", name),
		zap.Int("files", r.res.Files),
		zap.Int("fetched", r.res.Fetched),
		zap.Int("failed", r.res.Failed),
		zap.Int("bytes", r.res.Bytes),
	)
	r.emitter.Emit(events.NewDone(name))
	return nil
}

func (r *run) fetchListing(ctx context.Context, session fetch.Session, ref reporef.Reference) (*fetch.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.o.pageTimeout)
	defer cancel()
	ctx, span := r.o.tracer.Start(ctx, "pipeline.listing", trace.WithAttributes(
		attribute.String("url", ref.URL()),
	))
	defer span.End()

	page, err := session.Fetch(ctx, ref.URL())
	if err == nil {
		err = page.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", r.o.pageTimeout)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("links", len(page.Links)))
	return page, nil
}

func (r *run) warn(ctx context.Context, path, reason string) {
	r.res.Failed++
	r.o.metrics.fileFailed()
	r.o.logger.Warn(ctx, "file fetch failed", zap.String("path", path), zap.String("reason", reason))
	r.emitter.Emit(events.NewWarning(path, reason))
}

func (r *run) cancelled(ctx context.Context) error {
	cause := ctx.Err()
	return r.abort(ctx, OutcomeCancelled, fmt.Errorf("%w: %w", ErrCancelled, cause),
		"Run cancelled: %v", cause)
}

// abort emits the terminal ERROR event and moves the run to Aborted.
func (r *run) abort(ctx context.Context, outcome string, err error, format string, args ...any) error {
	r.res.FinalState = StateAborted
	r.outcome = outcome
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, outcome)
	r.o.logger.Warn(ctx, "run aborted", zap.String("outcome", outcome), zap.Error(err))
	r.emitter.Emit(events.NewError(format, args...))
	return err
}
