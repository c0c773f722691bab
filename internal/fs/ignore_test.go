package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIgnoreMatcher_Parsing(t *testing.T) {
	m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log", "!keep.log", "/top", "build/out/", "!", "/"})

	assert.Equal(t, []rule{
		{glob: "*.log"},
		{glob: "keep.log", negate: true},
		{glob: "top", path: true},
		{glob: "build/out", path: true},
	}, m.rules)
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{"basename glob in root", []string{"*.log"}, "app.log", true},
		{"basename glob in subdirectory", []string{"*.log"}, filepath.Join("sub", "app.log"), true},
		{"basename glob other extension", []string{"*.log"}, "app.txt", false},
		{"exact basename deep", []string{".DS_Store"}, filepath.Join("a", "b", ".DS_Store"), true},
		{"path pattern exact", []string{"build/output"}, filepath.Join("build", "output"), true},
		{"path pattern wrong parent", []string{"build/output"}, filepath.Join("src", "output"), false},
		{"path pattern glob", []string{"build/*.o"}, filepath.Join("build", "main.o"), true},
		{"anchored matches at root", []string{"/cache"}, "cache", true},
		{"anchored skips nested", []string{"/cache"}, filepath.Join("web", "cache"), false},
		{"unanchored matches nested", []string{"cache"}, filepath.Join("web", "cache"), true},
		{"trailing slash", []string{"node_modules/"}, filepath.Join("web", "node_modules"), true},
		{"character class", []string{"*.[oa]"}, "lib.a", true},
		{"question mark is one char", []string{"?.txt"}, "ab.txt", false},
		{"negation re-includes", []string{"*.log", "!keep.log"}, "keep.log", false},
		{"negation leaves others", []string{"*.log", "!keep.log"}, "drop.log", true},
		{"later rule wins", []string{"!keep.log", "*.log"}, "keep.log", true},
		{"malformed pattern never matches", []string{"[a-"}, "a", false},
		{"empty path", []string{"*"}, "", false},
		{"no patterns", nil, "a.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewIgnoreMatcher(tt.patterns).Match(tt.path))
		})
	}
}

func TestIgnoreMatcher_NilMatchesNothing(t *testing.T) {
	var m *IgnoreMatcher
	assert.False(t, m.Match("a.txt"))
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("returns raw lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		require.NoError(t, os.WriteFile(path, []byte("*.log\n# comment\n\n!keep.log\n"), 0644))

		lines, err := ParseIgnoreFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"*.log", "# comment", "", "!keep.log"}, lines)
	})

	t.Run("missing file is nil", func(t *testing.T) {
		t.Parallel()
		lines, err := ParseIgnoreFile(filepath.Join(t.TempDir(), "nope", IgnoreFileName))
		require.NoError(t, err)
		assert.Nil(t, lines)
	})

	t.Run("directory is an error", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), IgnoreFileName)
		require.NoError(t, os.Mkdir(dir, 0755))

		_, err := ParseIgnoreFile(dir)
		assert.Error(t, err)
	})
}

func TestNewSourceIgnoreMatcher(t *testing.T) {
	t.Run("combines ignore file, config and file rules", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("*.tmp\n!important.log\n"), 0644))

		m, err := NewSourceIgnoreMatcher(root, []string{"*.log"})
		require.NoError(t, err)

		for path, want := range map[string]bool{
			IgnoreFileName:  true,
			"debug.log":     true,
			"important.log": false,
			"scratch.tmp":   true,
			"notes.txt":     false,
		} {
			assert.Equal(t, want, m.Match(path), path)
		}
	})

	t.Run("missing ignore file still hides nothing else", func(t *testing.T) {
		t.Parallel()
		m, err := NewSourceIgnoreMatcher(t.TempDir(), nil)
		require.NoError(t, err)
		assert.False(t, m.Match("a.txt"))
		assert.True(t, m.Match(IgnoreFileName))
	})
}
