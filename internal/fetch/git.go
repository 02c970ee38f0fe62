package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/fyrsmithlabs/repoctx/internal/reporef"
)

// CloneFunc produces a checkout of url's default branch.
type CloneFunc func(ctx context.Context, url string) (*git.Repository, error)

// GitOptions configure the git backend.
type GitOptions struct {
	// Token is sent as HTTP basic auth password for private repositories.
	Token        string
	MaxBodyBytes int64
	// Clone replaces the default in-memory shallow clone.
	Clone CloneFunc
}

// GitProvider clones each repository once per session into memory and
// serves listings and file bodies from the commit tree.
type GitProvider struct {
	opts GitOptions
}

// NewGitProvider creates a git backend.
func NewGitProvider(opts GitOptions) *GitProvider {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Clone == nil {
		opts.Clone = shallowClone(opts.Token)
	}
	return &GitProvider{opts: opts}
}

func shallowClone(token string) CloneFunc {
	return func(ctx context.Context, url string) (*git.Repository, error) {
		opts := &git.CloneOptions{
			URL:          url + ".git",
			Depth:        1,
			SingleBranch: true,
			Tags:         git.NoTags,
		}
		if token != "" {
			opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
		}
		return git.CloneContext(ctx, memory.NewStorage(), nil, opts)
	}
}

// Acquire implements Provider.
func (p *GitProvider) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &gitSession{opts: p.opts, clones: make(map[string]*checkout)}, nil
}

type checkout struct {
	ref    reporef.Reference
	branch string
	tree   *object.Tree
}

type gitSession struct {
	opts GitOptions

	mu     sync.Mutex
	clones map[string]*checkout
	closed bool
}

var errSessionClosed = errors.New("session closed")

// Fetch implements Session.
func (s *gitSession) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if ref, ok := repositoryRoot(rawURL); ok {
		co, err := s.checkout(ctx, ref)
		if err != nil {
			return nil, err
		}
		return s.list(co)
	}
	return s.file(rawURL)
}

func (s *gitSession) checkout(ctx context.Context, ref reporef.Reference) (*checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}
	if co, ok := s.clones[ref.URL()]; ok {
		return co, nil
	}

	repo, err := s.opts.Clone(ctx, ref.URL())
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", ref.URL(), err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}

	branch := head.Hash().String()
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	co := &checkout{ref: ref, branch: branch, tree: tree}
	s.clones[ref.URL()] = co
	return co, nil
}

func (s *gitSession) list(co *checkout) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := &Page{URL: co.ref.URL(), OK: true, StatusCode: http.StatusOK}
	err := co.tree.Files().ForEach(func(f *object.File) error {
		if !f.Mode.IsFile() {
			return nil
		}
		page.Links = append(page.Links, co.ref.BlobLink(co.branch+"/"+f.Name))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk tree: %w", err)
	}
	return page, nil
}

func (s *gitSession) file(rawURL string) (*Page, error) {
	page := &Page{URL: rawURL}

	// Tree lookups build an internal index lazily, so reads are serialized.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}
	var (
		co   *checkout
		name string
	)
	for _, c := range s.clones {
		p, ok := c.ref.PathFromRawURL(rawURL)
		if !ok {
			continue
		}
		if rest, ok := strings.CutPrefix(p, c.branch+"/"); ok {
			co, name = c, rest
			break
		}
	}

	if co == nil {
		page.StatusCode = http.StatusNotFound
		page.Reason = "not part of a cloned repository"
		return page, nil
	}

	f, err := co.tree.File(name)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			page.StatusCode = http.StatusNotFound
			page.Reason = "file not found in tree"
			return page, nil
		}
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}
	if f.Size > s.opts.MaxBodyBytes {
		page.Reason = fmt.Sprintf("response exceeds %d bytes", s.opts.MaxBodyBytes)
		return page, nil
	}

	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if !utf8.ValidString(content) {
		page.Reason = "binary content"
		return page, nil
	}

	page.OK = true
	page.StatusCode = http.StatusOK
	page.Body = content
	return page, nil
}

// Close implements Session.
func (s *gitSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.clones = nil
	return nil
}
