package versioner

import "path/filepath"

// Layout locates one snapshot transaction on disk.
type Layout struct {
	SourceRoot string
	BackupRoot string
	VersionID  string
	PreviousID string // empty when there is no previous version
}

// VersionRoot is <backupRoot>/<versionID>.
func (l Layout) VersionRoot() string {
	return filepath.Join(l.BackupRoot, l.VersionID)
}

// PreviousRoot is <backupRoot>/<previousID>, or "" without a previous version.
func (l Layout) PreviousRoot() string {
	if l.PreviousID == "" {
		return ""
	}
	return filepath.Join(l.BackupRoot, l.PreviousID)
}

// Source returns the absolute source path of rel.
func (l Layout) Source(rel string) string {
	return filepath.Join(l.SourceRoot, rel)
}

// Target returns the path of rel inside the new version.
func (l Layout) Target(rel string) string {
	return filepath.Join(l.BackupRoot, l.VersionID, rel)
}

// Previous returns the path of rel inside the previous version.
func (l Layout) Previous(rel string) string {
	return filepath.Join(l.BackupRoot, l.PreviousID, rel)
}
