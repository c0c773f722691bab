package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// DefaultModTime is the modification time WriteTree gives every file.
var DefaultModTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// WriteTree creates files under root from a map of slash-separated relative
// paths to contents. A key ending in "/" creates an empty directory.
// Every file gets mode 0644 and DefaultModTime.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		if rel[len(rel)-1] == '/' {
			MkdirAll(t, filepath.Join(root, filepath.FromSlash(rel)))
			continue
		}
		WriteFile(t, root, rel, content, DefaultModTime)
	}
}

// WriteFile writes one file under root, creating parents, and sets its mtime.
func WriteFile(t *testing.T, root, rel, content string, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	MkdirAll(t, filepath.Dir(p))
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
	SetModTime(t, p, mtime)
	return p
}

// SetModTime sets both access and modification time of path.
func SetModTime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting mtime of %s: %v", path, err)
	}
}

// MkdirAll creates a directory and its parents.
func MkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
