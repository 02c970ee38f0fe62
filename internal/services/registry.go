package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/repoctx/internal/artifact"
	"github.com/fyrsmithlabs/repoctx/internal/config"
	"github.com/fyrsmithlabs/repoctx/internal/fetch"
	"github.com/fyrsmithlabs/repoctx/internal/filter"
	"github.com/fyrsmithlabs/repoctx/internal/logging"
	"github.com/fyrsmithlabs/repoctx/internal/pipeline"
	"github.com/fyrsmithlabs/repoctx/internal/secrets"
)

// Registry provides access to the components one process needs.
type Registry interface {
	Provider() fetch.Provider
	Store() artifact.Store
	Filter() *filter.Filter
	Scrubber() secrets.Scrubber
	Metrics() *pipeline.Metrics
	Orchestrator() *pipeline.Orchestrator
}

// Options configures the registry.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Registerer receives the pipeline metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer

	// Provider and Store replace the configured ones.
	Provider fetch.Provider
	Store    artifact.Store
}

type registry struct {
	provider     fetch.Provider
	store        artifact.Store
	filter       *filter.Filter
	scrubber     secrets.Scrubber
	metrics      *pipeline.Metrics
	orchestrator *pipeline.Orchestrator
}

// NewRegistry builds every component from opts.Config.
func NewRegistry(opts Options) (Registry, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	f, err := filter.New(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	scrubber, err := secrets.New(cfg.Scrub)
	if err != nil {
		return nil, fmt.Errorf("build scrubber: %w", err)
	}

	provider := opts.Provider
	if provider == nil {
		if provider, err = fetch.NewProvider(cfg.FetchOptions()); err != nil {
			return nil, fmt.Errorf("build fetch provider: %w", err)
		}
	}

	store := opts.Store
	if store == nil {
		store = artifact.NewFSStore(cfg.Pipeline.OutputDir)
	}

	metrics := pipeline.NewMetrics(opts.Registerer)

	pipelineOpts := []pipeline.Option{
		pipeline.WithFilter(f),
		pipeline.WithBatchSize(cfg.Pipeline.BatchSize),
		pipeline.WithPageTimeout(cfg.Pipeline.PageTimeout.Duration()),
		pipeline.WithScrubber(scrubber),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(opts.Tracer),
	}
	if rps := cfg.Pipeline.RequestsPerSecond; rps > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithLimiter(rate.NewLimiter(rate.Limit(rps), cfg.Pipeline.Burst)))
	}

	orch, err := pipeline.New(provider, store, pipelineOpts...)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	logger.Debug(context.Background(), "services initialized",
		zap.String("backend", cfg.Fetch.Backend),
		zap.String("output_dir", cfg.Pipeline.OutputDir),
		zap.Bool("scrub", scrubber.Enabled()),
	)
	return &registry{
		provider:     provider,
		store:        store,
		filter:       f,
		scrubber:     scrubber,
		metrics:      metrics,
		orchestrator: orch,
	}, nil
}

func (r *registry) Provider() fetch.Provider             { return r.provider }
func (r *registry) Store() artifact.Store                { return r.store }
func (r *registry) Filter() *filter.Filter               { return r.filter }
func (r *registry) Scrubber() secrets.Scrubber           { return r.scrubber }
func (r *registry) Metrics() *pipeline.Metrics           { return r.metrics }
func (r *registry) Orchestrator() *pipeline.Orchestrator { return r.orchestrator }
