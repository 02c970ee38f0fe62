package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repoctx/internal/events"
	httpserver "github.com/fyrsmithlabs/repoctx/internal/http"
)

type fetchFlags struct {
	serverURL string
	output    string
}

func newFetchCmd() *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch <repository-url>",
		Short: "Run the pipeline on a repoctxd server",
		Long: `Post a repository to a running repoctxd, print its event stream and
optionally download the finished artifact.

Examples:
  repoctx fetch https://github.com/owner/repo
  repoctx fetch https://github.com/owner/repo --server http://ctx.internal:8080 -o context.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return remoteRun(ctx, http.DefaultClient, f, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.serverURL, "server", "http://localhost:8080", "repoctxd base URL")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "download the artifact to this file")
	return cmd
}

// remoteRun streams a server-side run to out. It returns errRunFailed when
// the stream ends in ERROR or without a terminal event.
func remoteRun(ctx context.Context, client *http.Client, f fetchFlags, repoURL string, out io.Writer) error {
	base := strings.TrimRight(f.serverURL, "/")
	form := url.Values{httpserver.FormFieldRepoURL: {repoURL}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/process", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var last events.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, err := events.ParseLine(scanner.Text())
		if err != nil {
			continue
		}
		fmt.Fprintln(out, events.Format(ev))
		last = ev
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}

	switch last.Kind {
	case events.Done:
		if f.output == "" {
			return nil
		}
		return download(ctx, client, base, last.Artifact, f.output)
	case events.Error:
		return errRunFailed
	default:
		return fmt.Errorf("event stream ended without a result")
	}
}

func download(ctx context.Context, client *http.Client, base, name, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/static/"+url.PathEscape(path.Base(name)), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: server returned status %d", name, resp.StatusCode)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return file.Close()
}
