package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-source ignore file, read from the source root.
const IgnoreFileName = ".symverignore"

// rule is one parsed ignore line.
type rule struct {
	glob   string
	path   bool // match the slash-separated relative path instead of the basename
	negate bool // "!" prefix: re-include a path an earlier rule ignored
}

// IgnoreMatcher decides which source paths a snapshot skips.
//
// Patterns use filepath.Match syntax. A pattern containing '/' (or starting
// with one) is matched against the whole relative path, anything else against
// the basename. A trailing '/' is dropped. Rules are evaluated in order and
// the last one that matches decides, so "!keep.log" after "*.log" keeps
// keep.log. Malformed patterns never match.
type IgnoreMatcher struct {
	rules []rule
}

// NewIgnoreMatcher parses raw pattern lines, skipping blanks and '#' comments.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		if rest, ok := strings.CutPrefix(line, "!"); ok {
			r.negate = true
			line = rest
		}
		line = strings.TrimSuffix(line, "/")
		if rest, ok := strings.CutPrefix(line, "/"); ok {
			r.path = true
			line = rest
		}
		if line == "" {
			continue
		}
		r.glob = line
		r.path = r.path || strings.Contains(line, "/")
		m.rules = append(m.rules, r)
	}
	return m
}

// NewSourceIgnoreMatcher builds the matcher for one source root: the ignore
// file itself, then configured patterns, then the root's ignore file.
func NewSourceIgnoreMatcher(sourceRoot string, configured []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(sourceRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}

	lines := append([]string{IgnoreFileName}, configured...)
	lines = append(lines, fromFile...)
	return NewIgnoreMatcher(lines), nil
}

// Match reports whether relativePath (OS separators, relative to the source
// root) is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if m == nil || relativePath == "" {
		return false
	}

	slashed := filepath.ToSlash(relativePath)
	base := filepath.Base(relativePath)

	ignored := false
	for _, r := range m.rules {
		subject := base
		if r.path {
			subject = slashed
		}
		if ok, err := filepath.Match(r.glob, subject); err == nil && ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when the
// file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
