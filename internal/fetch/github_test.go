package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to target, keeping the path.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = rt.target.Scheme
	clone.URL.Host = rt.target.Host
	clone.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

type fakeGitHub struct {
	mu    sync.Mutex
	auth  []string
	srv   *httptest.Server
	trees int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/widgets", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "widgets", "default_branch": "main"})
	})
	mux.HandleFunc("/repos/octo/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		f.trees++
		f.mu.Unlock()
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sha": "abc",
			"tree": []map[string]any{
				{"path": "src", "type": "tree"},
				{"path": "src/a.py", "type": "blob"},
				{"path": "README.md", "type": "blob"},
			},
		})
	})
	mux.HandleFunc("/repos/octo/gone", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	mux.HandleFunc("/octo/widgets/main/src/a.py", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		_, _ = w.Write([]byte("print('a')"))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGitHub) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
}

func (f *fakeGitHub) provider(t *testing.T, token string) *GitHubProvider {
	t.Helper()
	target, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	return NewGitHubProvider(GitHubOptions{
		Token: token,
		HTTP:  HTTPOptions{Client: &http.Client{Transport: rewriteTransport{target: target}}},
	})
}

func TestGitHubSession_Listing(t *testing.T) {
	gh := newFakeGitHub(t)
	ctx := context.Background()

	session, err := gh.provider(t, "").Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	page, err := session.Fetch(ctx, "https://github.com/octo/widgets")
	require.NoError(t, err)
	require.True(t, page.OK)
	assert.Equal(t, []string{
		"https://github.com/octo/widgets/blob/main/src/a.py",
		"https://github.com/octo/widgets/blob/main/README.md",
	}, page.Links)
	assert.Equal(t, 1, gh.trees)
}

func TestGitHubSession_RawFetchWithToken(t *testing.T) {
	gh := newFakeGitHub(t)
	ctx := context.Background()

	session, err := gh.provider(t, "tok").Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	page, err := session.Fetch(ctx, "https://raw.githubusercontent.com/octo/widgets/main/src/a.py")
	require.NoError(t, err)
	require.True(t, page.OK)
	assert.Equal(t, "print('a')", page.Body)

	gh.mu.Lock()
	defer gh.mu.Unlock()
	require.NotEmpty(t, gh.auth)
	assert.Equal(t, "Bearer tok", gh.auth[len(gh.auth)-1])
}

func TestGitHubSession_MissingRepository(t *testing.T) {
	gh := newFakeGitHub(t)
	ctx := context.Background()

	session, err := gh.provider(t, "").Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	page, err := session.Fetch(ctx, "https://github.com/octo/gone")
	require.NoError(t, err)
	assert.False(t, page.OK)
	assert.Equal(t, http.StatusNotFound, page.StatusCode)
	assert.Contains(t, page.Reason, "404")
}

func TestGitHubProvider_BadAPIURL(t *testing.T) {
	p := NewGitHubProvider(GitHubOptions{APIBaseURL: "://bad"})
	_, err := p.Acquire(context.Background())
	assert.ErrorContains(t, err, "parse github api url")
}

func TestRepositoryRoot(t *testing.T) {
	ref, ok := repositoryRoot("https://github.com/octo/widgets/")
	require.True(t, ok)
	assert.Equal(t, "widgets", ref.Name)

	_, ok = repositoryRoot("https://raw.githubusercontent.com/octo/widgets/main/a.go")
	assert.False(t, ok)
	_, ok = repositoryRoot("not a url")
	assert.False(t, ok)
}
