package testutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"symver/internal/versioner"
)

// Op names a Filesystem method that FaultyFilesystem can fail.
type Op string

const (
	OpStat     Op = "stat"
	OpLstat    Op = "lstat"
	OpWalkDir  Op = "walkdir"
	OpMkdirAll Op = "mkdirall"
	OpOpen     Op = "open"
	OpCreate   Op = "create"
	OpChtimes  Op = "chtimes"
	OpSymlink  Op = "symlink"
	OpLink     Op = "link"
)

// ErrInjected is returned by FaultyFilesystem when no specific error was given.
var ErrInjected = errors.New("injected failure")

// FaultyFilesystem wraps a real Filesystem and fails chosen calls on chosen
// paths. Paths are compared after filepath.Clean. For Symlink and Link the
// new name is the path that is matched. Safe for concurrent use.
type FaultyFilesystem struct {
	inner versioner.Filesystem

	mu     sync.Mutex
	faults map[Op]map[string]error
	calls  map[Op]int
}

// NewFaultyFilesystem wraps inner. With no faults registered it behaves exactly like inner.
func NewFaultyFilesystem(inner versioner.Filesystem) *FaultyFilesystem {
	return &FaultyFilesystem{
		inner:  inner,
		faults: make(map[Op]map[string]error),
		calls:  make(map[Op]int),
	}
}

// Fail makes op on path return err, or ErrInjected when err is nil.
func (f *FaultyFilesystem) Fail(op Op, path string, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults[op] == nil {
		f.faults[op] = make(map[string]error)
	}
	f.faults[op][filepath.Clean(path)] = err
}

// Calls returns how many times op has been called, including failed calls.
func (f *FaultyFilesystem) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultyFilesystem) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.faults[op][filepath.Clean(path)]
}

func (f *FaultyFilesystem) Stat(path string) (fs.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}
	return f.inner.Stat(path)
}

func (f *FaultyFilesystem) Lstat(path string) (fs.FileInfo, error) {
	if err := f.check(OpLstat, path); err != nil {
		return nil, err
	}
	return f.inner.Lstat(path)
}

func (f *FaultyFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	return f.inner.ReadDir(path)
}

func (f *FaultyFilesystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	if err := f.check(OpWalkDir, root); err != nil {
		return fn(root, nil, err)
	}
	return f.inner.WalkDir(root, fn)
}

func (f *FaultyFilesystem) MkdirAll(path string, perm fs.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}
	return f.inner.MkdirAll(path, perm)
}

func (f *FaultyFilesystem) Open(path string) (io.ReadCloser, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}
	return f.inner.Open(path)
}

func (f *FaultyFilesystem) Create(path string, perm fs.FileMode) (io.WriteCloser, error) {
	if err := f.check(OpCreate, path); err != nil {
		return nil, err
	}
	return f.inner.Create(path, perm)
}

func (f *FaultyFilesystem) Chtimes(path string, atime, mtime time.Time) error {
	if err := f.check(OpChtimes, path); err != nil {
		return err
	}
	return f.inner.Chtimes(path, atime, mtime)
}

func (f *FaultyFilesystem) Symlink(oldname, newname string) error {
	if err := f.check(OpSymlink, newname); err != nil {
		return err
	}
	return f.inner.Symlink(oldname, newname)
}

func (f *FaultyFilesystem) Link(oldname, newname string) error {
	if err := f.check(OpLink, newname); err != nil {
		return err
	}
	return f.inner.Link(oldname, newname)
}

// Compile-time check that FaultyFilesystem implements versioner.Filesystem.
var _ versioner.Filesystem = (*FaultyFilesystem)(nil)
