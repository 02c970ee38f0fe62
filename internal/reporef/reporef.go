// Package reporef normalizes repository URLs and translates discovered blob
// paths into raw-content URLs.
package reporef

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	githubHost    = "github.com"
	githubRawHost = "raw.githubusercontent.com"
	artifactPre   = "llm_context_"
	artifactExt   = ".txt"
)

// MalformedReferenceError reports an input that cannot identify a repository.
type MalformedReferenceError struct {
	Input  string
	Reason string
}

func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("malformed repository reference %q: %s", e.Input, e.Reason)
}

// Reference identifies a repository root. The zero value is not usable.
type Reference struct {
	Scheme string
	Host   string
	Owner  string
	Name   string
	// Ref is the first segment after /blob/ or /tree/ in the input, if any.
	// It is informational: listings always follow the default branch, and
	// branches containing slashes are not split here; see RawURL.
	Ref string
}

// Parse normalizes raw into a Reference. Trailing slashes and any /blob/...
// or /tree/... suffix are dropped so the reference always names the root.
func Parse(raw string) (Reference, error) {
	input := raw
	s := strings.TrimSpace(raw)
	if s == "" {
		return Reference{}, &MalformedReferenceError{Input: input, Reason: "empty URL"}
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Reference{}, &MalformedReferenceError{Input: input, Reason: err.Error()}
	}
	if u.Host == "" {
		return Reference{}, &MalformedReferenceError{Input: input, Reason: "missing host"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Reference{}, &MalformedReferenceError{Input: input, Reason: "unsupported scheme " + u.Scheme}
	}

	segments := splitNonEmpty(u.Path)
	if len(segments) < 2 {
		return Reference{}, &MalformedReferenceError{Input: input, Reason: "expected /<owner>/<name>"}
	}

	// Only the segment after owner/name can start a blob or tree suffix;
	// an owner or repository may itself be called "blob" or "tree".
	var ref string
	if len(segments) > 3 && (segments[2] == "blob" || segments[2] == "tree") {
		ref = segments[3]
	}

	name := strings.TrimSuffix(segments[1], ".git")
	if name == "" {
		return Reference{}, &MalformedReferenceError{Input: input, Reason: "empty repository name"}
	}

	return Reference{
		Scheme: u.Scheme,
		Host:   strings.ToLower(u.Host),
		Owner:  segments[0],
		Name:   name,
		Ref:    ref,
	}, nil
}

// MustParse is Parse for constant inputs. It panics on error.
func MustParse(raw string) Reference {
	ref, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return ref
}

// URL returns the normalized repository root, without a trailing slash.
func (r Reference) URL() string {
	return (&url.URL{Scheme: r.Scheme, Host: r.Host, Path: "/" + r.Owner + "/" + r.Name}).String()
}

// String implements fmt.Stringer.
func (r Reference) String() string {
	return r.URL()
}

// Slug returns owner/name.
func (r Reference) Slug() string {
	return r.Owner + "/" + r.Name
}

// ArtifactName is the deterministic output file name for this repository.
func (r Reference) ArtifactName() string {
	return artifactPre + r.Name + artifactExt
}

// Valid reports whether the reference carries the segments RawURL needs.
func (r Reference) Valid() bool {
	return r.Host != "" && r.Owner != "" && r.Name != ""
}

// RawURL maps a branch-prefixed path to its raw-content URL. The path is
// appended whole, so the branch segment (slashed or not) stays in place.
func (r Reference) RawURL(filePath string) (string, error) {
	if !r.Valid() {
		return "", &MalformedReferenceError{Input: r.URL(), Reason: "missing owner or name"}
	}
	segments := splitNonEmpty(filePath)
	if len(segments) == 0 {
		return "", &MalformedReferenceError{Input: filePath, Reason: "empty file path"}
	}

	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return r.RawPrefix() + strings.Join(escaped, "/"), nil
}

// RawPrefix is the raw-content URL every RawURL result starts with,
// including the trailing slash.
func (r Reference) RawPrefix() string {
	owner, name := url.PathEscape(r.Owner), url.PathEscape(r.Name)
	if r.isGitHub() {
		return "https://" + githubRawHost + "/" + owner + "/" + name + "/"
	}
	scheme := r.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/" + owner + "/" + name + "/raw/"
}

// PathFromRawURL inverts RawURL, returning the branch-prefixed path.
func (r Reference) PathFromRawURL(raw string) (string, bool) {
	rest, ok := strings.CutPrefix(raw, r.RawPrefix())
	if !ok || rest == "" {
		return "", false
	}
	p, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return p, true
}

// BlobLink renders the browse URL for a branch-prefixed path. Backends that
// do not scrape HTML use it to report discovered files in hyperlink form.
func (r Reference) BlobLink(filePath string) string {
	u := url.URL{
		Scheme: r.Scheme,
		Host:   r.Host,
		Path:   "/" + r.Owner + "/" + r.Name + "/blob/" + strings.TrimLeft(filePath, "/"),
	}
	return u.String()
}

// BlobPath extracts the branch-prefixed file path from a hyperlink found on
// the listing page. Only same-repository /blob/ links qualify.
func (r Reference) BlobPath(href string) (string, bool) {
	if href == "" {
		return "", false
	}
	base, err := url.Parse(r.URL() + "/")
	if err != nil {
		return "", false
	}
	link, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(link)
	if !strings.EqualFold(resolved.Host, r.Host) {
		return "", false
	}

	prefix := "/" + r.Owner + "/" + r.Name + "/blob/"
	p := resolved.Path
	if !strings.HasPrefix(strings.ToLower(p), strings.ToLower(prefix)) {
		return "", false
	}
	rest := strings.Trim(p[len(prefix):], "/")
	if rest == "" {
		return "", false
	}
	return rest, true
}

func (r Reference) isGitHub() bool {
	return r.Host == githubHost || r.Host == "www."+githubHost
}

func splitNonEmpty(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
