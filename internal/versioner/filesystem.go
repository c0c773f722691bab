package versioner

import (
	"io"
	"io/fs"
	"time"
)

// Filesystem abstracts every filesystem call the engine makes so tests can
// inject failures without touching permissions on the real disk.
type Filesystem interface {
	// Stat follows symbolic links.
	Stat(path string) (fs.FileInfo, error)

	// Lstat does not follow symbolic links.
	Lstat(path string) (fs.FileInfo, error)

	// ReadDir lists the immediate children of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)

	// WalkDir walks the tree rooted at root in lexical order without
	// following symbolic links.
	WalkDir(root string, fn fs.WalkDirFunc) error

	// MkdirAll creates a directory and any missing parents.
	// An existing directory is not an error.
	MkdirAll(path string, perm fs.FileMode) error

	// Open opens a file for reading, following symbolic links.
	Open(path string) (io.ReadCloser, error)

	// Create creates a new file for writing. It fails if path already exists.
	Create(path string, perm fs.FileMode) (io.WriteCloser, error)

	// Chtimes sets access and modification times.
	Chtimes(path string, atime, mtime time.Time) error

	// Symlink creates newname as a symbolic link to oldname.
	Symlink(oldname, newname string) error

	// Link creates newname as a hard link to oldname.
	Link(oldname, newname string) error
}
