package versioner

import (
	"io/fs"
	"path/filepath"
	"time"
)

// FileEntry is one filesystem object discovered during a tree walk.
// Info is the symlink-following stat, RawInfo the lstat. Only Info takes
// part in the copy/link decision.
type FileEntry struct {
	Root         string
	RelativePath string
	Info         fs.FileInfo
	RawInfo      fs.FileInfo
}

// AbsPath returns the entry's path joined to its root.
func (e FileEntry) AbsPath() string {
	return filepath.Join(e.Root, e.RelativePath)
}

// IsDir reports whether the entry resolves to a directory.
func (e FileEntry) IsDir() bool {
	return e.Info.IsDir()
}

// IsSymlink reports whether the entry itself is a symbolic link.
func (e FileEntry) IsSymlink() bool {
	return e.RawInfo.Mode()&fs.ModeSymlink != 0
}

// ModTime is the resolved modification time.
func (e FileEntry) ModTime() time.Time {
	return e.Info.ModTime()
}

// Plan is the Diff output. The two lists are not exclusive: a path present
// in the previous version with a newer mtime is in both, and ToCopy wins for
// content.
type Plan struct {
	ToCopy []FileEntry
	ToLink []FileEntry
}

// Empty reports whether there is nothing to copy.
func (p Plan) Empty() bool {
	return len(p.ToCopy) == 0
}

// LinkCandidates returns the non-directory ToLink entries whose content is
// not being replaced by a copy.
func (p Plan) LinkCandidates() []FileEntry {
	copied := make(map[string]struct{}, len(p.ToCopy))
	for _, e := range p.ToCopy {
		copied[e.RelativePath] = struct{}{}
	}

	var out []FileEntry
	for _, e := range p.ToLink {
		if e.IsDir() {
			continue
		}
		if _, ok := copied[e.RelativePath]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CopyCandidates returns the non-directory ToCopy entries.
func (p Plan) CopyCandidates() []FileEntry {
	var out []FileEntry
	for _, e := range p.ToCopy {
		if e.IsDir() {
			continue
		}
		out = append(out, e)
	}
	return out
}
