// Package events defines the progress stream a pipeline run emits and its
// line-oriented wire form.
//
// Each event is one line: a prefix naming the kind, a colon, and a payload.
//
//	STATUS:Processing files 1-10 of 23...
//	PROGRESS:main/src/a.py
//	WARNING:Failed to fetch main/src/b.py: status 404
//	ERROR:No relevant files found. Is this a public repository?
//	DONE:llm_context_widgets.txt
//
// INFO: is accepted as an alias of STATUS: when parsing.
package events

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags an Event.
type Kind int

const (
	Status Kind = iota + 1
	Progress
	Warning
	Error
	Done
)

var kindPrefixes = map[Kind]string{
	Status:   "STATUS",
	Progress: "PROGRESS",
	Warning:  "WARNING",
	Error:    "ERROR",
	Done:     "DONE",
}

// String returns the wire prefix without the colon.
func (k Kind) String() string {
	if p, ok := kindPrefixes[k]; ok {
		return p
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Terminal reports whether no event may follow k in a run.
func (k Kind) Terminal() bool {
	return k == Error || k == Done
}

// Event is one entry of the progress stream.
type Event struct {
	Kind Kind
	// Message is the payload of Status and Error events.
	Message string
	// Path is set on Progress and Warning events.
	Path string
	// Reason explains a Warning.
	Reason string
	// Artifact names the persisted document on Done.
	Artifact string
}

// NewStatus returns a Status event.
func NewStatus(format string, args ...any) Event {
	return Event{Kind: Status, Message: fmt.Sprintf(format, args...)}
}

// NewProgress returns a Progress event for path.
func NewProgress(path string) Event {
	return Event{Kind: Progress, Path: path}
}

// NewWarning returns a Warning event for a failed path.
func NewWarning(path, reason string) Event {
	return Event{Kind: Warning, Path: path, Reason: reason}
}

// NewError returns an Error event.
func NewError(format string, args ...any) Event {
	return Event{Kind: Error, Message: fmt.Sprintf(format, args...)}
}

// NewDone returns a Done event naming the artifact.
func NewDone(artifact string) Event {
	return Event{Kind: Done, Artifact: artifact}
}

const warningPrefix = "Failed to fetch "

// Payload renders the text after the prefix.
func (e Event) Payload() string {
	switch e.Kind {
	case Progress:
		return e.Path
	case Warning:
		if e.Reason == "" {
			return warningPrefix + e.Path
		}
		return warningPrefix + e.Path + ": " + e.Reason
	case Done:
		return e.Artifact
	default:
		return e.Message
	}
}

// Format renders e as a single line without the trailing newline.
// Newlines in the payload are folded to spaces so framing stays intact.
func Format(e Event) string {
	payload := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(e.Payload())
	return e.Kind.String() + ":" + payload
}

// ErrMalformedLine is returned by ParseLine for unknown prefixes.
var ErrMalformedLine = errors.New("malformed event line")

// ParseLine parses one line of the stream. Trailing CR/LF is ignored.
//
// A WARNING payload is split at the first ": ", since reasons are usually
// wrapped errors that contain the separator themselves. A path containing
// ": " therefore comes back truncated, with the remainder in Reason; the
// rendered line is unchanged either way.
func ParseLine(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	prefix, payload, ok := strings.Cut(line, ":")
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	switch prefix {
	case "STATUS", "INFO":
		return Event{Kind: Status, Message: payload}, nil
	case "PROGRESS":
		return Event{Kind: Progress, Path: payload}, nil
	case "WARNING":
		ev := Event{Kind: Warning}
		rest := strings.TrimPrefix(payload, warningPrefix)
		ev.Path, ev.Reason, _ = strings.Cut(rest, ": ")
		return ev, nil
	case "ERROR":
		return Event{Kind: Error, Message: payload}, nil
	case "DONE":
		return Event{Kind: Done, Artifact: payload}, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown prefix %q", ErrMalformedLine, prefix)
	}
}
