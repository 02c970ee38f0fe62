// Package filter classifies discovered repository paths as source-like or
// ignorable and produces the deduplicated, sorted working set.
package filter

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/repoctx/internal/ignore"
)

// Config lists what the filter rejects.
type Config struct {
	// IgnoredDirs rejects a path when any segment equals an entry (case-sensitive).
	IgnoredDirs []string `koanf:"ignored_dirs"`

	// IgnoredFiles rejects a path when its final segment equals an entry (case-sensitive).
	IgnoredFiles []string `koanf:"ignored_files"`

	// IgnoredExtensions rejects a path by extension (case-insensitive, leading dot).
	IgnoredExtensions []string `koanf:"ignored_extensions"`

	// ExcludePatterns are gitignore-style patterns checked after the sets above.
	ExcludePatterns []string `koanf:"exclude_patterns"`
}

// DefaultConfig returns the built-in ignore sets.
func DefaultConfig() Config {
	return Config{
		IgnoredDirs: []string{
			"node_modules", ".git", "__pycache__", ".venv", "venv", "env",
			"dist", "build", ".next", ".cache", ".github", "target",
		},
		IgnoredFiles: []string{
			"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "poetry.lock", "uv.lock",
			".gitignore", ".dockerignore", ".DS_Store", "LICENSE", "Makefile", "MANIFEST.in",
		},
		IgnoredExtensions: []string{
			".png", ".jpg", ".jpeg", ".gif", ".ico", ".svg", ".webp", ".bmp",
			".woff", ".woff2", ".ttf", ".eot", ".otf",
			".mp3", ".mp4", ".wav", ".avi", ".mov",
			".zip", ".tar", ".gz", ".rar", ".7z",
			".pdf", ".doc", ".docx", ".xls", ".xlsx",
			".lock", ".sum", ".mod",
			".pyc", ".exe", ".bin", ".ipynb",
		},
	}
}

// Filter is an immutable path predicate.
type Filter struct {
	dirs     map[string]struct{}
	files    map[string]struct{}
	exts     map[string]struct{}
	excludes *ignore.Matcher
}

// New builds a Filter from cfg.
func New(cfg Config) (*Filter, error) {
	f := &Filter{
		dirs:  toSet(cfg.IgnoredDirs),
		files: toSet(cfg.IgnoredFiles),
		exts:  make(map[string]struct{}, len(cfg.IgnoredExtensions)),
	}
	for _, ext := range cfg.IgnoredExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.exts[ext] = struct{}{}
	}

	if len(cfg.ExcludePatterns) > 0 {
		m, err := ignore.Compile(ignore.ParseLines(cfg.ExcludePatterns))
		if err != nil {
			return nil, fmt.Errorf("exclude patterns: %w", err)
		}
		f.excludes = m
	}

	return f, nil
}

// MustNew is New for static configurations. It panics on error.
func MustNew(cfg Config) *Filter {
	f, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return f
}

// Default returns a Filter built from DefaultConfig.
func Default() *Filter {
	return MustNew(DefaultConfig())
}

// IsUseful reports whether p looks like source worth fetching.
// It is total: any string, including "", yields a result.
func (f *Filter) IsUseful(p string) bool {
	segments := strings.Split(p, "/")
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if _, ok := f.dirs[seg]; ok {
			return false
		}
	}

	name := segments[len(segments)-1]
	if _, ok := f.files[name]; ok {
		return false
	}

	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if _, ok := f.exts[ext]; ok {
			return false
		}
	}

	if f.excludes.Match(p) {
		return false
	}

	return true
}

// Select filters paths, drops empties and duplicates, and sorts ascending.
func (f *Filter) Select(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if f.IsUseful(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		set[item] = struct{}{}
	}
	return set
}
