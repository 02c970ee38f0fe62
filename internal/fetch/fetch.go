// Package fetch is the page-fetching capability the pipeline drives.
//
// A Provider hands out one Session per run. The session is held for the
// whole run and released with Close on every exit path. Given a URL, a
// session reports success or failure, the hyperlinks it discovered and the
// body it retrieved:
//
//	session, err := provider.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	page, err := session.Fetch(ctx, "https://github.com/octo/widgets")
//
// Three backends are available:
//   - http: plain HTTP GET; HTML responses are scanned for hyperlinks
//   - github: REST API tree listing, raw content over HTTP
//   - git: depth-1 in-memory clone; listing and content come from the tree
package fetch

import (
	"context"
	"fmt"
	"strings"
)

// Page is the outcome of fetching one URL.
type Page struct {
	URL        string
	OK         bool
	StatusCode int
	// Reason explains why OK is false.
	Reason string
	// Links are the hyperlinks found on the page, as written (unresolved).
	Links []string
	Body  string
}

// Err returns nil for a successful page and a descriptive error otherwise.
func (p *Page) Err() error {
	if p == nil {
		return fmt.Errorf("no page")
	}
	if p.OK {
		return nil
	}
	if p.Reason == "" {
		return fmt.Errorf("fetch failed")
	}
	return fmt.Errorf("%s", p.Reason)
}

// Session fetches URLs. Fetch must be safe for concurrent use.
type Session interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Close() error
}

// Provider acquires sessions.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Session, error)

// Acquire implements Provider.
func (f ProviderFunc) Acquire(ctx context.Context) (Session, error) { return f(ctx) }

// Backend names accepted by NewProvider.
const (
	BackendHTTP   = "http"
	BackendGitHub = "github"
	BackendGit    = "git"
)

// Options configure NewProvider.
type Options struct {
	Backend      string
	UserAgent    string
	MaxBodyBytes int64
	HTTP         HTTPOptions
	GitHub       GitHubOptions
	Git          GitOptions
}

// NewProvider returns the provider named by opts.Backend (default http).
func NewProvider(opts Options) (Provider, error) {
	httpOpts := opts.HTTP
	if httpOpts.UserAgent == "" {
		httpOpts.UserAgent = opts.UserAgent
	}
	if httpOpts.MaxBodyBytes == 0 {
		httpOpts.MaxBodyBytes = opts.MaxBodyBytes
	}

	switch strings.ToLower(opts.Backend) {
	case "", BackendHTTP:
		return NewHTTPProvider(httpOpts), nil
	case BackendGitHub:
		gh := opts.GitHub
		gh.HTTP = httpOpts
		return NewGitHubProvider(gh), nil
	case BackendGit:
		return NewGitProvider(opts.Git), nil
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", opts.Backend)
	}
}
