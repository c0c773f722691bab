package versioner

import (
	"io/fs"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Matcher decides which relative paths are pruned from a listing.
type Matcher interface {
	Match(relativePath string) bool
}

// ListTree enumerates every file, directory and symbolic link under root,
// including empty directories, and stats each one both with and without
// following links. An empty root yields an empty listing. Any walk or stat
// failure fails the whole listing with KindIO.
//
// ignore may be nil. A matched directory prunes its whole subtree.
// workers <= 0 stats every path concurrently; otherwise it caps the number
// of stats in flight.
func ListTree(fsys Filesystem, root string, ignore Matcher, workers int) ([]FileEntry, error) {
	if root == "" {
		return nil, nil
	}

	// A root that is itself a symlink is walked through the link.
	walkRoot := root
	if raw, err := fsys.Lstat(root); err == nil && raw.Mode()&fs.ModeSymlink != 0 {
		walkRoot = root + string(filepath.Separator)
	}

	var paths []string
	err := fsys.WalkDir(walkRoot, func(p string, d fs.DirEntry, walkErr error) error {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return ioFailure(p, err)
		}
		if walkErr != nil {
			if rel == "." {
				return ioFailure(root, walkErr)
			}
			return ioFailure(rel, walkErr)
		}
		if rel == "." {
			return nil
		}
		if ignore != nil && ignore.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, len(paths))
	g := newGroup(workers)
	for i, rel := range paths {
		g.Go(func() error {
			abs := filepath.Join(root, rel)
			info, err := fsys.Stat(abs)
			if err != nil {
				return ioFailure(rel, err)
			}
			raw, err := fsys.Lstat(abs)
			if err != nil {
				return ioFailure(rel, err)
			}
			entries[i] = FileEntry{
				Root:         root,
				RelativePath: rel,
				Info:         info,
				RawInfo:      raw,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

// newGroup returns an errgroup capped at workers, or unbounded when workers <= 0.
func newGroup(workers int) *errgroup.Group {
	g := new(errgroup.Group)
	if workers > 0 {
		g.SetLimit(workers)
	}
	return g
}
