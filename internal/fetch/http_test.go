package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<!doctype html>
<html><body>
<a href="/octo/widgets/blob/main/src/a.py">a.py</a>
<a href="/octo/widgets/tree/main/src">src</a>
<p><a>no href</a><a href="">empty</a></p>
<a class="x" href="https://github.com/octo/widgets/blob/main/README.md"/>
</body></html>`

func TestExtractLinks(t *testing.T) {
	links := ExtractLinks(listingHTML)
	assert.Equal(t, []string{
		"/octo/widgets/blob/main/src/a.py",
		"/octo/widgets/tree/main/src",
		"https://github.com/octo/widgets/blob/main/README.md",
	}, links)
}

func TestExtractLinks_Garbage(t *testing.T) {
	assert.Empty(t, ExtractLinks("not html at all"))
	assert.Empty(t, ExtractLinks(""))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`<a href="/x">not parsed</a>`))
	})
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.UserAgent() + "|" + r.Header.Get("X-Extra")))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	})
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xfe, 0x00, 0x01})
	})
	mux.HandleFunc("/missing", http.NotFound)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSession_Fetch(t *testing.T) {
	srv := newTestServer(t)
	provider := NewHTTPProvider(HTTPOptions{
		MaxBodyBytes: 32,
		Header:       http.Header{"X-Extra": []string{"yes"}},
	})

	ctx := context.Background()
	session, err := provider.Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	t.Run("html listing", func(t *testing.T) {
		p := NewHTTPProvider(HTTPOptions{})
		s, err := p.Acquire(ctx)
		require.NoError(t, err)
		defer s.Close()

		page, err := s.Fetch(ctx, srv.URL+"/listing")
		require.NoError(t, err)
		require.True(t, page.OK)
		assert.NoError(t, page.Err())
		assert.Equal(t, http.StatusOK, page.StatusCode)
		assert.Len(t, page.Links, 3)
	})

	t.Run("plain text has no links", func(t *testing.T) {
		page, err := session.Fetch(ctx, srv.URL+"/plain")
		require.NoError(t, err)
		require.True(t, page.OK)
		assert.Empty(t, page.Links)
		assert.Contains(t, page.Body, "not parsed")
	})

	t.Run("user agent and headers", func(t *testing.T) {
		page, err := session.Fetch(ctx, srv.URL+"/agent")
		require.NoError(t, err)
		assert.Equal(t, DefaultUserAgent+"|yes", page.Body)
	})

	t.Run("not found", func(t *testing.T) {
		page, err := session.Fetch(ctx, srv.URL+"/missing")
		require.NoError(t, err)
		assert.False(t, page.OK)
		assert.Equal(t, http.StatusNotFound, page.StatusCode)
		assert.EqualError(t, page.Err(), "HTTP 404")
	})

	t.Run("body too large", func(t *testing.T) {
		page, err := session.Fetch(ctx, srv.URL+"/big")
		require.NoError(t, err)
		assert.False(t, page.OK)
		assert.Contains(t, page.Reason, "exceeds 32 bytes")
	})

	t.Run("binary", func(t *testing.T) {
		page, err := session.Fetch(ctx, srv.URL+"/binary")
		require.NoError(t, err)
		assert.False(t, page.OK)
		assert.Equal(t, "binary content", page.Reason)
	})

	t.Run("transport error", func(t *testing.T) {
		_, err := session.Fetch(ctx, "http://127.0.0.1:1/nothing")
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := session.Fetch(cctx, srv.URL+"/plain")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHTTPProvider_AcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPProvider(HTTPOptions{}).Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		backend string
		want    any
	}{
		{"", &HTTPProvider{}},
		{"http", &HTTPProvider{}},
		{"GitHub", &GitHubProvider{}},
		{"git", &GitProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := NewProvider(Options{Backend: tt.backend})
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}

	_, err := NewProvider(Options{Backend: "ftp"})
	assert.ErrorContains(t, err, `unknown fetch backend "ftp"`)
}

func TestPage_Err(t *testing.T) {
	var nilPage *Page
	assert.Error(t, nilPage.Err())
	assert.EqualError(t, (&Page{}).Err(), "fetch failed")
	assert.NoError(t, (&Page{OK: true}).Err())
}
