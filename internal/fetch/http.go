package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DefaultUserAgent identifies repoctx to remote hosts.
	DefaultUserAgent = "repoctx/1.0"

	// DefaultMaxBodyBytes caps a single response body.
	DefaultMaxBodyBytes int64 = 10 << 20

	defaultHTTPTimeout = 60 * time.Second
)

// HTTPOptions configure the http backend.
type HTTPOptions struct {
	// Client is used as-is when set; Timeout is then ignored.
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
	Timeout      time.Duration
	// Header is added to every request.
	Header http.Header
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultHTTPTimeout
	}
	return o
}

// HTTPProvider hands out sessions backed by plain HTTP GETs.
type HTTPProvider struct {
	opts HTTPOptions
}

// NewHTTPProvider creates an http backend.
func NewHTTPProvider(opts HTTPOptions) *HTTPProvider {
	return &HTTPProvider{opts: opts.withDefaults()}
}

// Acquire implements Provider. Each session owns its transport so Close can
// drop idle connections without touching other runs.
func (p *HTTPProvider) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := p.opts.Client
	owned := false
	if client == nil {
		client = &http.Client{
			Timeout:   p.opts.Timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		}
		owned = true
	}
	return &httpSession{client: client, owned: owned, opts: p.opts}, nil
}

type httpSession struct {
	client *http.Client
	owned  bool
	opts   HTTPOptions
}

// Fetch implements Session. Transport failures are returned as errors;
// responses the server refused or that cannot be used as text come back as
// a Page with OK unset.
func (s *httpSession) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	for k, vs := range s.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readPage(rawURL, resp, s.opts.MaxBodyBytes)
}

// Close implements Session.
func (s *httpSession) Close() error {
	if s.owned {
		s.client.CloseIdleConnections()
	}
	return nil
}

func readPage(rawURL string, resp *http.Response, maxBytes int64) (*Page, error) {
	page := &Page{URL: rawURL, StatusCode: resp.StatusCode}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		page.Reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return page, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		page.Reason = fmt.Sprintf("response exceeds %d bytes", maxBytes)
		return page, nil
	}
	if !utf8.Valid(body) {
		page.Reason = "binary content"
		return page, nil
	}

	page.OK = true
	page.Body = string(body)
	if isHTML(resp.Header.Get("Content-Type")) {
		page.Links = ExtractLinks(page.Body)
	}
	return page, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// ExtractLinks returns the href of every anchor in doc, in document order.
// Duplicates are kept; the caller decides what to do with them.
func ExtractLinks(doc string) []string {
	var links []string
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
					break
				}
			}
		}
	}
}
