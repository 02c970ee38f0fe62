// Package services builds the repoctx components from configuration and
// hands them out through a Registry.
//
// Both binaries use it: the CLI to run the pipeline in-process and the
// daemon to back the HTTP server.
package services
