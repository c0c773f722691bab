package versioner

import (
	"sort"
	"time"
)

// VersionFormat is the layout of version identifiers: fixed width, 24-hour,
// so string order equals chronological order.
const VersionFormat = "20060102150405"

// VersionID derives the version identifier for a snapshot taken at t.
// The time is normalised to UTC so daylight-saving shifts cannot reorder ids.
func VersionID(t time.Time) string {
	return t.UTC().Format(VersionFormat)
}

// ParseVersionID returns the instant a version identifier encodes.
func ParseVersionID(id string) (time.Time, error) {
	return time.ParseInLocation(VersionFormat, id, time.UTC)
}

// LatestVersion returns the most recent version under backupRoot, or ""
// when there is none yet. The most recent version is the lexicographically
// greatest child directory name.
func LatestVersion(fsys Filesystem, backupRoot string) (string, error) {
	if err := requireDir(fsys, backupRoot, KindBackupRootNotFound); err != nil {
		return "", err
	}

	entries, err := fsys.ReadDir(backupRoot)
	if err != nil {
		return "", ioFailure(backupRoot, err)
	}

	latest := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if name := e.Name(); name >= latest {
			latest = name
		}
	}
	return latest, nil
}

// ListVersions returns every version under backupRoot, oldest first.
func ListVersions(fsys Filesystem, backupRoot string) ([]string, error) {
	if err := requireDir(fsys, backupRoot, KindBackupRootNotFound); err != nil {
		return nil, err
	}

	entries, err := fsys.ReadDir(backupRoot)
	if err != nil {
		return nil, ioFailure(backupRoot, err)
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// requireDir fails with kind unless path exists and is a directory.
func requireDir(fsys Filesystem, path string, kind Kind) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return &Error{Kind: kind, Path: path, Err: err}
	}
	if !info.IsDir() {
		return &Error{Kind: kind, Path: path}
	}
	return nil
}
