package filter

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUseful(t *testing.T) {
	f := Default()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"plain source", "main/src/a.py", true},
		{"go source", "main/cmd/app/main.go", true},
		{"vendor dir", "main/node_modules/x.js", false},
		{"nested vcs dir", "main/pkg/.git/config", false},
		{"dir as final segment", "main/build", false},
		{"image", "main/img.png", false},
		{"extension case-insensitive", "main/docs/Logo.PNG", false},
		{"lockfile by name", "main/package-lock.json", false},
		{"license", "main/LICENSE", false},
		{"filename is case-sensitive", "main/license", true},
		{"dir name is case-sensitive", "main/Build/x.go", true},
		{"go.sum", "main/go.sum", false},
		{"dotfile kept", "main/.editorconfig", true},
		{"gitignore by name", "main/sub/.gitignore", false},
		{"dist substring is not a segment", "main/distance/calc.go", true},
		{"empty", "", true},
		{"slash only", "/", true},
		{"double slashes", "main//src//a.go", true},
		{"no segments", "README.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IsUseful(tt.path))
		})
	}
}

func TestIsUseful_IgnoredDirWinsOverExtension(t *testing.T) {
	f := Default()
	for _, dir := range DefaultConfig().IgnoredDirs {
		for _, name := range []string{"a.go", "b.py", "README.md", "x"} {
			p := "main/" + dir + "/" + name
			assert.False(t, f.IsUseful(p), p)
		}
	}
}

func TestIsUseful_TotalOverArbitraryInput(t *testing.T) {
	f := Default()
	inputs := []string{
		"", "/", "//", ".", "..", "a", ".png", "a.", "main/", "/main",
		strings.Repeat("a/", 200), "\x00/\xff", "main/src/été.go",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			first := f.IsUseful(in)
			assert.Equal(t, first, f.IsUseful(in), "deterministic for %q", in)
		})
	}
}

func TestSelect_Scenario(t *testing.T) {
	f := Default()
	got := f.Select([]string{
		"main/src/a.py",
		"main/src/a.py",
		"main/node_modules/x.js",
		"main/img.png",
	})
	assert.Equal(t, []string{"main/src/a.py"}, got)
}

func TestSelect_SortedAndUnique(t *testing.T) {
	f := Default()
	in := []string{"main/z.go", "main/a.go", "", "main/m.go", "main/a.go", "main/z.go", "main/b/c.go"}

	got := f.Select(in)

	assert.True(t, sort.StringsAreSorted(got))
	seen := map[string]bool{}
	for _, p := range got {
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true
	}
	assert.Equal(t, []string{"main/a.go", "main/b/c.go", "main/m.go", "main/z.go"}, got)
}

func TestNew_CustomConfig(t *testing.T) {
	f, err := New(Config{
		IgnoredDirs:       []string{"fixtures"},
		IgnoredFiles:      []string{"CHANGELOG.md"},
		IgnoredExtensions: []string{"MD", " .Txt "},
		ExcludePatterns:   []string{"*_test.go", "# comment"},
	})
	require.NoError(t, err)

	assert.False(t, f.IsUseful("main/fixtures/a.go"))
	assert.False(t, f.IsUseful("main/CHANGELOG.md"))
	assert.False(t, f.IsUseful("main/notes.md"))
	assert.False(t, f.IsUseful("main/notes.TXT"))
	assert.False(t, f.IsUseful("main/pkg/foo_test.go"))
	assert.True(t, f.IsUseful("main/pkg/foo.go"))
	// Not in the custom sets.
	assert.True(t, f.IsUseful("main/node_modules/x.js"))
}

func TestNew_EmptyConfigAcceptsEverything(t *testing.T) {
	f, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, f.IsUseful("main/node_modules/logo.png"))
}
