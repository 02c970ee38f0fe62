package secrets

import (
	"fmt"
	"sort"
	"strings"
)

// Result is the outcome of scrubbing one piece of content.
type Result struct {
	// Scrubbed is the content with every secret replaced.
	Scrubbed string
	// Findings never carry the secret value.
	Findings []Finding
}

// Finding locates one detected secret.
type Finding struct {
	RuleID string
	// Line is 1-indexed.
	Line int
}

// Count returns the number of findings.
func (r *Result) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Findings)
}

// ByRule counts findings per rule ID.
func (r *Result) ByRule() map[string]int {
	out := make(map[string]int)
	if r == nil {
		return out
	}
	for _, f := range r.Findings {
		out[f.RuleID]++
	}
	return out
}

// Summary renders the per-rule counts, e.g. "github-token=2, jwt=1".
func (r *Result) Summary() string {
	if r.Count() == 0 {
		return "no secrets detected"
	}
	byRule := r.ByRule()
	ids := make([]string, 0, len(byRule))
	for id := range byRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s=%d", id, byRule[id])
	}
	return strings.Join(parts, ", ")
}

type span struct {
	start, end int
	ruleID     string
}

// redact replaces every span in content, merging overlaps first.
func redact(content, replacement string, spans []span) *Result {
	res := &Result{Scrubbed: content}
	if len(spans) == 0 {
		return res
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	for _, s := range spans {
		res.Findings = append(res.Findings, Finding{
			RuleID: s.ruleID,
			Line:   strings.Count(content[:s.start], "\n") + 1,
		})
	}

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, s := range spans {
		if s.end <= pos {
			continue
		}
		if s.start < pos {
			s.start = pos
		}
		b.WriteString(content[pos:s.start])
		b.WriteString(replacement)
		pos = s.end
	}
	b.WriteString(content[pos:])
	res.Scrubbed = b.String()
	return res
}
