package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"symver/internal/versioner"
)

// OSFilesystem is the real filesystem implementation of versioner.Filesystem.
type OSFilesystem struct{}

// NewOSFilesystem creates a filesystem that operates on the real disk.
func NewOSFilesystem() *OSFilesystem {
	return &OSFilesystem{}
}

func (*OSFilesystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (*OSFilesystem) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

func (*OSFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

func (*OSFilesystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

func (*OSFilesystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Open opens a file for reading. Directories are rejected.
func (*OSFilesystem) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return f, nil
}

// Create creates a new file at path and sets perm exactly, regardless of
// umask. An existing path, including a symlink, is an error and is left as is.
func (*OSFilesystem) Create(path string, perm fs.FileMode) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return nil, fmt.Errorf("setting permissions: %w", err)
	}
	return f, nil
}

func (*OSFilesystem) Chtimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}

func (*OSFilesystem) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

func (*OSFilesystem) Link(oldname, newname string) error {
	return os.Link(oldname, newname)
}

// Compile-time check that OSFilesystem implements versioner.Filesystem.
var _ versioner.Filesystem = (*OSFilesystem)(nil)
