package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/repoctx/internal/reporef"
)

// GitHubOptions configure the github backend.
type GitHubOptions struct {
	// Token authenticates API and raw requests. Optional for public repos.
	Token string
	// APIBaseURL overrides https://api.github.com/ (GitHub Enterprise).
	APIBaseURL string
	HTTP       HTTPOptions
}

// GitHubProvider lists repositories through the REST API tree endpoint and
// fetches file bodies from raw URLs.
type GitHubProvider struct {
	opts GitHubOptions
	http *HTTPProvider
}

// NewGitHubProvider creates a github backend.
func NewGitHubProvider(opts GitHubOptions) *GitHubProvider {
	return &GitHubProvider{opts: opts, http: NewHTTPProvider(opts.HTTP)}
}

// Acquire implements Provider.
func (p *GitHubProvider) Acquire(ctx context.Context) (Session, error) {
	base, err := p.http.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	hs := base.(*httpSession)

	client := hs.client
	if p.opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.opts.Token})
		client = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, hs.client), ts)
	}

	gh := github.NewClient(client)
	gh.UserAgent = hs.opts.UserAgent
	if p.opts.APIBaseURL != "" {
		u, err := url.Parse(strings.TrimRight(p.opts.APIBaseURL, "/") + "/")
		if err != nil {
			_ = hs.Close()
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		gh.BaseURL = u
	}

	return &githubSession{
		gh:  gh,
		raw: &httpSession{client: client, owned: false, opts: hs.opts},
		own: hs,
	}, nil
}

type githubSession struct {
	gh  *github.Client
	raw *httpSession
	own *httpSession
}

// Fetch implements Session. A repository root URL is answered with a
// synthetic listing whose links are blob URLs for every file in the tree;
// any other URL is fetched over HTTP.
func (s *githubSession) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if ref, ok := repositoryRoot(rawURL); ok {
		return s.list(ctx, ref)
	}
	return s.raw.Fetch(ctx, rawURL)
}

func (s *githubSession) list(ctx context.Context, ref reporef.Reference) (*Page, error) {
	page := &Page{URL: ref.URL()}

	repo, resp, err := s.gh.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return apiFailure(page, resp, err)
	}
	branch := repo.GetDefaultBranch()

	tree, resp, err := s.gh.Git.GetTree(ctx, ref.Owner, ref.Name, branch, true)
	if err != nil {
		return apiFailure(page, resp, err)
	}

	page.OK = true
	page.StatusCode = http.StatusOK
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		page.Links = append(page.Links, ref.BlobLink(branch+"/"+entry.GetPath()))
	}
	return page, nil
}

// Close implements Session.
func (s *githubSession) Close() error {
	return s.own.Close()
}

func apiFailure(page *Page, resp *github.Response, err error) (*Page, error) {
	if resp == nil || resp.Response == nil {
		return nil, err
	}
	page.StatusCode = resp.StatusCode
	page.Reason = fmt.Sprintf("GitHub API: HTTP %d", resp.StatusCode)
	return page, nil
}

// repositoryRoot reports whether rawURL names a repository root rather than
// a file within it.
func repositoryRoot(rawURL string) (reporef.Reference, bool) {
	ref, err := reporef.Parse(rawURL)
	if err != nil {
		return reporef.Reference{}, false
	}
	if strings.TrimRight(rawURL, "/") != ref.URL() {
		return reporef.Reference{}, false
	}
	return ref, true
}
