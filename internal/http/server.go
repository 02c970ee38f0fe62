// Package http serves the pipeline over HTTP.
//
// POST /process streams a run's progress events as text lines; the artifact
// it produces is then downloadable from GET /static/<name>.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoctx/internal/artifact"
	"github.com/fyrsmithlabs/repoctx/internal/events"
	"github.com/fyrsmithlabs/repoctx/internal/logging"
	"github.com/fyrsmithlabs/repoctx/internal/pipeline"
)

// FormFieldRepoURL is the form field POST /process reads.
const FormFieldRepoURL = "repo_url"

// Runner executes one pipeline run. *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, rawURL string, emitter events.Emitter) (*pipeline.Result, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the repoctx HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	runner   Runner
	store    artifact.Store
	logger   *logging.Logger
	config   *Config
	gatherer prometheus.Gatherer
	meter    metric.Meter

	// runsCtx parents every request context; cancelRuns aborts runs still
	// streaming when a shutdown times out.
	runsCtx    context.Context
	cancelRuns context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry GET /metrics exposes.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithMeter sets the meter for HTTP request metrics.
func WithMeter(m metric.Meter) Option {
	return func(s *Server) { s.meter = m }
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, store artifact.Store, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("artifact store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	s := &Server{
		echo:     echo.New(),
		runner:   runner,
		store:    store,
		logger:   logger,
		config:   cfg,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	s.runsCtx, s.cancelRuns = context.WithCancel(context.Background())
	e.Server.BaseContext = func(net.Listener) context.Context { return s.runsCtx }

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(NewHTTPMetrics(s.meter, logger.Underlying()).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.echo.POST("/process", s.handleProcess)
	s.echo.GET("/static/:filename", s.handleStatic)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			s.logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", status),
				zap.Int64("bytes", c.Response().Size),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleProcess runs the pipeline and streams its events. The status is
// always 200: outcome is carried by the terminal ERROR or DONE line.
func (s *Server) handleProcess(c echo.Context) error {
	repoURL := strings.TrimSpace(c.FormValue(FormFieldRepoURL))

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	emitter := events.NewLineEmitter(resp)
	if repoURL == "" {
		emitter.Emit(events.NewError("Missing repository URL"))
		return nil
	}

	ctx := c.Request().Context()
	res, err := s.runner.Run(ctx, repoURL, emitter)
	if err != nil {
		s.logger.Debug(ctx, "run ended with error", zap.Error(err))
	}
	if werr := emitter.Err(); werr != nil {
		s.logger.Warn(ctx, "client stream broken", zap.Error(werr))
	}
	if res != nil {
		s.logger.Debug(ctx, "run finished",
			zap.String("run_id", res.RunID),
			zap.Stringer("state", res.FinalState),
		)
	}
	return nil
}

func (s *Server) handleStatic(c echo.Context) error {
	name := c.Param("filename")
	rc, size, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidName) || errors.Is(err, artifact.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
		}
		s.logger.Error(c.Request().Context(), "open artifact", zap.String("name", name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open artifact")
	}
	defer rc.Close()

	h := c.Response().Header()
	h.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Stream(http.StatusOK, echo.MIMETextPlainCharsetUTF8, rc)
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.Addr()))
	return s.echo.Start(s.Addr())
}

// Shutdown stops accepting requests and waits for open streams until ctx
// ends. Runs still going at that point are cancelled and report
// "Run cancelled" to their clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	err := s.echo.Shutdown(ctx)
	s.cancelRuns()
	return err
}
