package secrets

import (
	"regexp"
	"strings"
)

// Scrubber redacts secrets from content. Implementations are safe for
// concurrent use.
type Scrubber interface {
	Scrub(content string) *Result
	Enabled() bool
}

// New builds the scrubber cfg selects. A disabled config yields Noop.
func New(cfg Config) (Scrubber, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RedactionString == "" {
		cfg.RedactionString = DefaultRedaction
	}
	allow, err := compileAllowList(cfg.AllowList)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(cfg.Engine, EngineGitleaks) {
		return newGitleaksScrubber(cfg.RedactionString, allow)
	}

	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &regexScrubber{rules: compiled, allow: allow, redaction: cfg.RedactionString}, nil
}

// MustNew is New for configurations known to be valid.
func MustNew(cfg Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

type regexScrubber struct {
	rules     []compiledRule
	allow     []*regexp.Regexp
	redaction string
}

func (s *regexScrubber) Scrub(content string) *Result {
	var lower string
	var spans []span

	for _, rule := range s.rules {
		if len(rule.keywords) > 0 {
			if lower == "" {
				lower = strings.ToLower(content)
			}
			if !containsAny(lower, rule.keywords) {
				continue
			}
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if allowed(s.allow, content[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, span{start: m[0], end: m[1], ruleID: rule.ID})
		}
	}
	return redact(content, s.redaction, spans)
}

func (s *regexScrubber) Enabled() bool { return true }

// Noop leaves content unchanged.
type Noop struct{}

// Scrub returns content as-is.
func (Noop) Scrub(content string) *Result { return &Result{Scrubbed: content} }

// Enabled reports false.
func (Noop) Enabled() bool { return false }

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func allowed(allow []*regexp.Regexp, match string) bool {
	for _, re := range allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

var (
	_ Scrubber = (*regexScrubber)(nil)
	_ Scrubber = Noop{}
)
