// Package assembler builds the concatenated context document.
//
// Every fetched file becomes one section:
//
//	\n\n--- START OF FILE: <path> ---\n<content>\n--- END OF FILE: <path> ---
//
// Sections appear in append order. Files that failed to fetch are never
// appended, so they leave no trace in the document.
package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	startPrefix = "--- START OF FILE: "
	endPrefix   = "--- END OF FILE: "
	markerTail  = " ---"
)

// StartMarker returns the line that opens the section for path.
func StartMarker(path string) string { return startPrefix + path + markerTail }

// EndMarker returns the line that closes the section for path.
func EndMarker(path string) string { return endPrefix + path + markerTail }

// Document is an append-only context document.
// It is not safe for concurrent use.
type Document struct {
	buf      bytes.Buffer
	sections int
}

// New returns an empty document.
func New() *Document {
	return &Document{}
}

// Append adds one file section.
func (d *Document) Append(path, content string) {
	d.buf.WriteString("\n\n")
	d.buf.WriteString(StartMarker(path))
	d.buf.WriteByte('\n')
	d.buf.WriteString(content)
	d.buf.WriteByte('\n')
	d.buf.WriteString(EndMarker(path))
	d.sections++
}

// Len returns the number of sections.
func (d *Document) Len() int { return d.sections }

// Size returns the document size in bytes.
func (d *Document) Size() int { return d.buf.Len() }

// Bytes returns the document content. The slice aliases internal storage
// until the next Append.
func (d *Document) Bytes() []byte { return d.buf.Bytes() }

// String returns the document content.
func (d *Document) String() string { return d.buf.String() }

// WriteTo implements io.WriterTo.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d.buf.Bytes())
	return int64(n), err
}

// Section is one parsed file section.
type Section struct {
	Path    string
	Content string
}

// ErrUnbalanced is returned by Parse when markers do not pair up.
var ErrUnbalanced = errors.New("unbalanced file markers")

// Parse splits a document back into its sections. A content line that looks
// exactly like the expected end marker closes the section early; documents
// produced by Append from such content are therefore not round-trippable.
func Parse(text string) ([]Section, error) {
	var sections []Section
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, startPrefix) || !strings.HasSuffix(line, markerTail) {
			if strings.HasPrefix(line, endPrefix) {
				return nil, fmt.Errorf("%w: end marker without start at line %d", ErrUnbalanced, i+1)
			}
			return nil, fmt.Errorf("%w: unexpected text outside a section at line %d", ErrUnbalanced, i+1)
		}

		path := strings.TrimSuffix(strings.TrimPrefix(line, startPrefix), markerTail)
		end := EndMarker(path)

		j := i + 1
		for j < len(lines) && lines[j] != end {
			j++
		}
		if j == len(lines) {
			return nil, fmt.Errorf("%w: no end marker for %s", ErrUnbalanced, path)
		}

		sections = append(sections, Section{
			Path:    path,
			Content: strings.Join(lines[i+1:j], "\n"),
		})
		i = j
	}

	return sections, nil
}
