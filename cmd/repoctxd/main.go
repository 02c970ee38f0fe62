// Repoctxd serves the repoctx pipeline over HTTP.
//
// POST /process streams a run's events, GET /static/<name> serves the
// artifacts, /health and /metrics report on the daemon.
//
// Configuration comes from ./repoctx.yaml (or -config) and REPOCTX_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	repoctxd
//
//	# Configure via environment
//	REPOCTX_SERVER_PORT=9090 REPOCTX_FETCH_BACKEND=github repoctxd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoctx/internal/config"
	httpserver "github.com/fyrsmithlabs/repoctx/internal/http"
	"github.com/fyrsmithlabs/repoctx/internal/logging"
	"github.com/fyrsmithlabs/repoctx/internal/services"
	"github.com/fyrsmithlabs/repoctx/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default ./repoctx.yaml if present)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  repoctxd [-config file]   Start the repoctx daemon\n")
			fmt.Fprintf(os.Stderr, "  repoctxd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("repoctxd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Builds the fetch provider, artifact store and orchestrator
//  4. Starts the HTTP server
//  5. Shuts down within server.shutdown_timeout once ctx ends
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg.Telemetry.ServiceVersion = version
	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown", zap.Error(err))
		}
	}()
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	logger.Info(ctx, "Starting repoctxd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Fetch.Backend),
		zap.Bool("github_token", cfg.Fetch.GitHubToken.IsSet()),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg, err := services.NewRegistry(services.Options{
		Config:     cfg,
		Logger:     logger,
		Registerer: promReg,
		Tracer:     tel.Tracer("repoctx/pipeline"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := httpserver.NewServer(reg.Orchestrator(), reg.Store(), logger.Named("http"),
		&httpserver.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		httpserver.WithGatherer(promReg),
		httpserver.WithMeter(tel.Meter("repoctx/http")),
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
