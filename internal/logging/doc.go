// Package logging provides structured logging for repoctx.
//
// # Overview
//
// The package wraps Zap with:
//   - A Trace level (-2, below Debug) for per-file fetch detail
//   - Context field injection (trace_id, span_id, run.id, request.id)
//   - Encoder-level redaction of sensitive fields
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, os.Stderr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "listing fetched", zap.Int("links", n))
//
// Logs are written to stderr by the binaries. Stdout carries the
// line-oriented event stream in worker mode and must stay clean.
//
// # Configuration
//
//	logging:
//	  level: info        # trace, debug, info, warn, error
//	  format: console    # json or console
//	  caller:
//	    enabled: true
//	  fields:
//	    service: repoctx
//
// Environment overrides use the REPOCTX_LOGGING_ prefix.
package logging
