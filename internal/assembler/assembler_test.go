package assembler

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_ExactFormat(t *testing.T) {
	doc := New()
	doc.Append("main/a.py", "print('hi')")

	want := "\n\n--- START OF FILE: main/a.py ---\nprint('hi')\n--- END OF FILE: main/a.py ---"
	assert.Equal(t, want, doc.String())
	assert.Equal(t, 1, doc.Len())
	assert.Equal(t, len(want), doc.Size())
}

func TestAppend_PreservesOrder(t *testing.T) {
	doc := New()
	doc.Append("main/a.go", "package a")
	doc.Append("main/b.go", "package b")
	doc.Append("main/c.go", "package c")

	sections, err := Parse(doc.String())
	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, []Section{
		{Path: "main/a.go", Content: "package a"},
		{Path: "main/b.go", Content: "package b"},
		{Path: "main/c.go", Content: "package c"},
	}, sections)
}

func TestParse_RoundTripContentShapes(t *testing.T) {
	contents := map[string]string{
		"main/empty.txt":   "",
		"main/trailing.go": "package x\n",
		"main/blank.md":    "\n\n# Title\n\n",
		"main/unicode.txt": "héllo wörld",
		"main/markers.txt": "--- START OF FILE: fake ---",
	}
	order := []string{"main/blank.md", "main/empty.txt", "main/markers.txt", "main/trailing.go", "main/unicode.txt"}

	doc := New()
	for _, p := range order {
		doc.Append(p, contents[p])
	}

	sections, err := Parse(doc.String())
	require.NoError(t, err)
	require.Len(t, sections, len(order))
	for i, s := range sections {
		assert.Equal(t, order[i], s.Path)
		assert.Equal(t, contents[s.Path], s.Content, s.Path)
	}
}

func TestParse_Empty(t *testing.T) {
	sections, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestParse_Unbalanced(t *testing.T) {
	tests := map[string]string{
		"missing end":   "\n\n--- START OF FILE: a ---\nbody",
		"stray end":     "--- END OF FILE: a ---",
		"stray content": "hello",
		"mismatched":    "--- START OF FILE: a ---\nx\n--- END OF FILE: b ---",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text)
			assert.True(t, errors.Is(err, ErrUnbalanced))
		})
	}
}

func TestWriteTo(t *testing.T) {
	doc := New()
	doc.Append("main/a.go", "x")

	var buf bytes.Buffer
	n, err := doc.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(doc.Size()), n)
	assert.Equal(t, doc.Bytes(), buf.Bytes())
}

func TestMarkers(t *testing.T) {
	assert.Equal(t, "--- START OF FILE: main/a.go ---", StartMarker("main/a.go"))
	assert.Equal(t, "--- END OF FILE: main/a.go ---", EndMarker("main/a.go"))
}
