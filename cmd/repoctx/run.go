package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoctx/internal/events"
	"github.com/fyrsmithlabs/repoctx/internal/logging"
	"github.com/fyrsmithlabs/repoctx/internal/services"
	"github.com/fyrsmithlabs/repoctx/internal/telemetry"
)

const usageLine = "Usage: repoctx run <repository-url>"

type runFlags struct {
	outputDir string
	batchSize int
	progress  bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <repository-url>",
		Short: "Run the pipeline locally and stream events to stdout",
		Long: `Run the pipeline in this process. Events are printed one per line:

  STATUS:Found 12 code files.
  PROGRESS:main/cmd/app/main.go
  WARNING:Failed to fetch main/big.bin: binary content
  DONE:llm_context_repo.txt

The exit code is 1 when the run ends with an ERROR line. A /blob/ or /tree/
suffix is dropped: the listing always follows the default branch.

Examples:
  repoctx run https://github.com/owner/repo
  repoctx run https://github.com/owner/repo --output-dir out --progress`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd, args, f)
		},
	}
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "directory for the artifact (overrides pipeline.output_dir)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "files fetched concurrently (overrides pipeline.batch_size)")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "draw a progress bar on stderr")
	return cmd
}

func (a *app) runPipeline(cmd *cobra.Command, args []string, f runFlags) error {
	lines := events.NewLineEmitter(cmd.OutOrStdout())
	if len(args) != 1 {
		lines.Emit(events.NewError(usageLine))
		return errRunFailed
	}

	// Worker mode: every failure ends the stream with an ERROR line.
	fail := func(format string, err error) error {
		lines.Emit(events.NewError(format, err))
		return errRunFailed
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return fail("Failed to load configuration: %v", err)
	}
	if f.outputDir != "" {
		cfg.Pipeline.OutputDir = f.outputDir
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Pipeline.BatchSize = f.batchSize
		if err := cfg.Validate(); err != nil {
			return fail("Invalid configuration: %v", err)
		}
	}
	if f.progress && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}

	logger, err := logging.NewLogger(&cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fail("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fail("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
		}
	}()

	reg, err := services.NewRegistry(services.Options{
		Config:   cfg,
		Logger:   logger,
		Tracer:   tel.Tracer("repoctx/pipeline"),
		Provider: a.provider,
	})
	if err != nil {
		return fail("Failed to initialize services: %v", err)
	}

	var emitter events.Emitter = lines
	if f.progress {
		emitter = events.Multi(lines, newProgressEmitter(cmd.ErrOrStderr()))
	}

	if _, err := reg.Orchestrator().Run(ctx, args[0], emitter); err != nil {
		return errRunFailed
	}
	return nil
}
