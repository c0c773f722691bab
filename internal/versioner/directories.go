package versioner

import (
	"path/filepath"
	"sort"
)

// DirMode is the permission used for directories created inside a version.
const DirMode = 0755

// VersionDirectories returns every directory the new version needs, relative
// to the version root: each directory entry of ToCopy and ToLink, plus "."
// for the version root itself. The result is sorted and free of duplicates.
func VersionDirectories(plan Plan) []string {
	seen := map[string]struct{}{".": {}}
	for _, list := range [][]FileEntry{plan.ToCopy, plan.ToLink} {
		for _, e := range list {
			if e.IsDir() {
				seen[e.RelativePath] = struct{}{}
			}
		}
	}

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// BuildDirectories creates every directory in VersionDirectories(plan) under
// versionRoot, creating missing parents. Creating an existing directory is
// not an error, so the call is idempotent. The first failure is returned as
// KindDirectoryCreationFailed; directories already created are left in place.
// It returns the relative directories it created.
func BuildDirectories(fsys Filesystem, plan Plan, versionRoot string, workers int) ([]string, error) {
	dirs := VersionDirectories(plan)

	g := newGroup(workers)
	for _, rel := range dirs {
		g.Go(func() error {
			target := filepath.Join(versionRoot, rel)
			if err := fsys.MkdirAll(target, DirMode); err != nil {
				return &Error{Kind: KindDirectoryCreationFailed, Path: target, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dirs, nil
}
