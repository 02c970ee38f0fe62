package secrets

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksScrubber runs the gitleaks default rule pack and redacts every
// occurrence of each reported secret.
type gitleaksScrubber struct {
	mu        sync.Mutex
	detector  *detect.Detector
	allow     []*regexp.Regexp
	redaction string
}

func newGitleaksScrubber(redaction string, allow []*regexp.Regexp) (*gitleaksScrubber, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load gitleaks rules: %w", err)
	}
	return &gitleaksScrubber{detector: d, allow: allow, redaction: redaction}, nil
}

func (s *gitleaksScrubber) Scrub(content string) *Result {
	s.mu.Lock()
	findings := s.detector.DetectString(content)
	s.mu.Unlock()

	seen := make(map[string]bool)
	var spans []span
	for _, f := range findings {
		if f.Secret == "" || seen[f.Secret] || allowed(s.allow, f.Secret) {
			continue
		}
		seen[f.Secret] = true
		for off := 0; ; {
			i := strings.Index(content[off:], f.Secret)
			if i < 0 {
				break
			}
			start := off + i
			spans = append(spans, span{start: start, end: start + len(f.Secret), ruleID: f.RuleID})
			off = start + len(f.Secret)
		}
	}
	return redact(content, s.redaction, spans)
}

func (s *gitleaksScrubber) Enabled() bool { return true }

var _ Scrubber = (*gitleaksScrubber)(nil)
