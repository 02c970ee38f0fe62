package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a non-negative time.Duration read from text. YAML and TOML
// files give it as a string ("30s", "1m30s"); REPOCTX_* variables may also
// give a bare number of seconds, so REPOCTX_PIPELINE_PAGE_TIMEOUT=45 works.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	parsed, err := time.ParseDuration(s)
	if err != nil {
		secs, nerr := strconv.ParseInt(s, 10, 64)
		if nerr != nil {
			return fmt.Errorf("invalid duration %q: want a Go duration such as 30s or whole seconds", s)
		}
		parsed = time.Duration(secs) * time.Second
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds a credential such as fetch.github_token. It prints, logs and
// serializes as [REDACTED]; only Value exposes it, for the fetch backends.
// It is normally set through REPOCTX_FETCH_GITHUB_TOKEN rather than a file.
type Secret string

const redacted = "[REDACTED]"

// String implements fmt.Stringer. An unset secret prints as empty.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string {
	return "Secret(" + redacted + ")"
}

func (s Secret) Value() string {
	return string(s)
}

func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Surrounding whitespace
// is dropped: a token read from a file with a trailing newline would
// otherwise produce an invalid Authorization header.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(strings.TrimSpace(string(text)))
	return nil
}
