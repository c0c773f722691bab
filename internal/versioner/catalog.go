package versioner

import (
	"io/fs"
	"time"
)

// EntryAction records how a path landed in a version.
type EntryAction string

const (
	ActionCopy EntryAction = "copy"
	ActionLink EntryAction = "link"
	ActionDir  EntryAction = "dir"
)

// Operation is one CLI invocation that mutated the catalog.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	VersionID  string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// VersionRecord is the catalog row for one completed snapshot.
type VersionRecord struct {
	ID          string
	SourceRoot  string
	BackupRoot  string
	PreviousID  string
	CreatedAt   time.Time
	Copied      int
	Linked      int
	Directories int
}

// VersionEntry is one path inside a recorded version.
type VersionEntry struct {
	VersionID    string
	RelativePath string
	Action       EntryAction
	Size         int64
	Mode         fs.FileMode
	ModTime      time.Time
	Checksum     string // copy only
	LinkVersion  string // link only
}

// Database is the snapshot catalog. Lookups that find nothing return nil
// with a nil error.
type Database interface {
	// CreateOperation starts an operation record and returns its id.
	CreateOperation(operation, parameters string, startedAt time.Time) (int64, error)

	// FinishOperation sets the final status and, for snapshots, the version produced.
	FinishOperation(id int64, status, versionID string, finishedAt time.Time) error

	// ListOperations returns up to limit operations, newest first.
	ListOperations(limit int) ([]*Operation, error)

	// RecordVersion stores a version and all of its entries in one transaction.
	RecordVersion(version *VersionRecord, entries []*VersionEntry) error

	FindVersion(id string) (*VersionRecord, error)

	// FindVersionEntries returns the entries of a version ordered by path.
	FindVersionEntries(versionID string) ([]*VersionEntry, error)

	// FindPathHistory returns every recorded entry for relativePath, oldest version first.
	FindPathHistory(relativePath string) ([]*VersionEntry, error)

	// BackupTo writes a consistent copy of the catalog to destPath.
	BackupTo(destPath string) error

	Close() error
}
