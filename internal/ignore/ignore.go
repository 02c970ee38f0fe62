// Package ignore turns gitignore-style exclude patterns into a path matcher.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ParseFile reads a gitignore-style file and returns glob patterns.
func ParseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return ParseLines(lines), nil
}

// ParseLines converts gitignore-style lines into deduplicated glob patterns.
func ParseLines(lines []string) []string {
	patterns := make([]string, 0, len(lines))
	for _, line := range lines {
		if p := parseLine(line); p != "" {
			patterns = append(patterns, p)
		}
	}
	return deduplicate(patterns)
}

// parseLine returns empty string for comments, blank lines and negations.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	// Negations are not supported.
	if strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern converts a gitignore pattern to a glob pattern.
func toGlobPattern(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "/")

	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}

	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "*") {
		pattern = "**/" + pattern
	}

	// Bare names without an extension are treated as directories.
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}

	return pattern
}

func deduplicate(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// Matcher reports whether a slash-separated path matches any compiled glob.
type Matcher struct {
	patterns []string
	res      []*regexp.Regexp
}

// Compile builds a Matcher from glob patterns supporting *, ? and **.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{
		patterns: make([]string, 0, len(patterns)),
		res:      make([]*regexp.Regexp, 0, len(patterns)),
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(globToRegexp(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, p)
		m.res = append(m.res, re)
	}
	return m, nil
}

// Patterns returns the source globs.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return m.patterns
}

// Match is true when a glob matches p or any segment suffix of p.
// Discovered paths carry a branch prefix, so every pattern is unrooted.
func (m *Matcher) Match(p string) bool {
	if m == nil || len(m.res) == 0 {
		return false
	}
	for candidate := p; ; {
		for _, re := range m.res {
			if re.MatchString(candidate) {
				return true
			}
		}
		i := strings.IndexByte(candidate, '/')
		if i < 0 {
			return false
		}
		candidate = candidate[i+1:]
	}
}

func globToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch {
		case strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 2
		case strings.HasPrefix(glob[i:], "/**") && i+3 == len(glob):
			b.WriteString("(?:/.*)?")
			i += 2
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return b.String()
}
