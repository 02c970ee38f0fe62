package secrets

import (
	"fmt"
	"regexp"
	"strings"
)

// Engine names.
const (
	EngineRegex    = "regex"
	EngineGitleaks = "gitleaks"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures scrubbing.
type Config struct {
	// Enabled turns scrubbing on. Off by default: artifacts carry file
	// content verbatim unless asked otherwise.
	Enabled bool `koanf:"enabled"`

	// Engine is "regex" (default) or "gitleaks".
	Engine string `koanf:"engine"`

	// RedactionString replaces each secret.
	RedactionString string `koanf:"redaction_string"`

	// Rules override the regex engine's built-in rules when non-empty.
	Rules []Rule `koanf:"rules"`

	// AllowList patterns exempt matching secrets in either engine.
	AllowList []string `koanf:"allow_list"`
}

// Rule is one regex detection rule.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`
	// Keywords gate the rule: it runs only when one appears (case-insensitive).
	Keywords []string `koanf:"keywords"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string
}

// DefaultConfig returns scrubbing disabled with the regex engine selected.
func DefaultConfig() Config {
	return Config{
		Engine:          EngineRegex,
		RedactionString: DefaultRedaction,
	}
}

// Validate checks the engine name and that every pattern compiles.
func (c Config) Validate() error {
	switch strings.ToLower(c.Engine) {
	case "", EngineRegex, EngineGitleaks:
	default:
		return fmt.Errorf("unknown scrub engine %q", c.Engine)
	}
	if _, err := compileRules(c.Rules); err != nil {
		return err
	}
	if _, err := compileAllowList(c.AllowList); err != nil {
		return err
	}
	return nil
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		kws := make([]string, len(rule.Keywords))
		for j, kw := range rule.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		out = append(out, compiledRule{Rule: rule, pattern: re, keywords: kws})
	}
	return out, nil
}

func compileAllowList(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		out = append(out, re)
	}
	return out, nil
}
