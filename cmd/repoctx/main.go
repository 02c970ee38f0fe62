// Repoctx turns a GitHub repository into a single LLM context file.
//
// Usage:
//
//	# Run the pipeline locally, printing progress events to stdout
//	repoctx run https://github.com/owner/repo
//
//	# Ask a running repoctxd to do it and download the result
//	repoctx fetch https://github.com/owner/repo --server http://localhost:8080 -o context.txt
//
//	# Preview which paths the filter keeps
//	git ls-files | repoctx filter
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repoctx/internal/config"
	"github.com/fyrsmithlabs/repoctx/internal/fetch"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// errRunFailed signals a run that already reported its failure as an ERROR
// event; main only sets the exit code.
var errRunFailed = errors.New("run failed")

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// app carries state shared by subcommands.
type app struct {
	configPath string

	// provider replaces the configured fetch backend.
	provider fetch.Provider
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "repoctx",
		Short: "Flatten a GitHub repository into one LLM context file",
		Long: `repoctx lists a GitHub repository, keeps the files worth reading,
fetches them in batches and writes them into a single text file with
START/END markers around each file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./repoctx.yaml if present)")

	root.AddCommand(
		newRunCmd(a),
		newFetchCmd(),
		newFilterCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "repoctx by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
