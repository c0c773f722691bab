package versioner

import (
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options tunes a Service.
type Options struct {
	HostID   string
	Ignore   Matcher // applied to the source listing only; may be nil
	Workers  int     // <= 0 means unbounded fan-out
	LinkMode LinkMode
}

// Service is the orchestration layer between the CLI and the engine. It
// runs snapshots and answers catalog and mirror queries.
type Service struct {
	fsys      Filesystem
	database  Database
	vault     Vault
	encryptor Encryptor
	logger    Logger
	clock     Clock
	opts      Options
}

// NewService creates a Service. database, vault and encryptor may be nil:
// without a database nothing is recorded, without a vault nothing can be
// pushed or fetched, and without an encryptor pushes are stored in the clear.
func NewService(fsys Filesystem, database Database, vault Vault, encryptor Encryptor, logger Logger, clock Clock, opts Options) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if opts.LinkMode == "" {
		opts.LinkMode = LinkSymlink
	}
	return &Service{
		fsys:      fsys,
		database:  database,
		vault:     vault,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		opts:      opts,
	}
}

// WithIgnore returns a copy of s that filters source listings through m.
func (s *Service) WithIgnore(m Matcher) *Service {
	c := *s
	c.opts.Ignore = m
	return &c
}

// SnapshotRequest names the trees of one snapshot.
type SnapshotRequest struct {
	SourceRoot string
	BackupRoot string
	Force      bool // create a version even when nothing changed
}

// Result describes a completed snapshot.
type Result struct {
	VersionID   string
	PreviousID  string
	TakenAt     time.Time
	Directories []string
	Copied      []CopiedFile
	Linked      []LinkedFile
}

// Snapshot creates a new version of req.SourceRoot under req.BackupRoot.
//
// Nothing is written before the diff is known. If nothing needs copying and
// req.Force is false it fails with KindNoActionTaken. Otherwise every
// directory is created first, then files are copied and linked concurrently.
// A failure part way through leaves the partial version in place.
func (s *Service) Snapshot(req SnapshotRequest) (*Result, error) {
	s.logger.Debug("snapshot validating", "source", req.SourceRoot, "backup", req.BackupRoot, "force", req.Force)
	if req.SourceRoot == "" || req.BackupRoot == "" {
		return nil, &Error{Kind: KindConfiguration}
	}
	if err := requireDir(s.fsys, req.SourceRoot, KindSourceRootNotFound); err != nil {
		return nil, err
	}
	if err := requireDir(s.fsys, req.BackupRoot, KindBackupRootNotFound); err != nil {
		return nil, err
	}

	takenAt := s.clock.Now()
	layout := Layout{
		SourceRoot: req.SourceRoot,
		BackupRoot: req.BackupRoot,
		VersionID:  VersionID(takenAt),
	}

	previousID, err := LatestVersion(s.fsys, req.BackupRoot)
	if err != nil {
		return nil, err
	}
	layout.PreviousID = previousID

	s.logger.Debug("snapshot listing", "version", layout.VersionID, "previous", previousID)
	current, previous, err := s.listBoth(layout)
	if err != nil {
		return nil, err
	}

	for _, e := range current {
		if e.IsSymlink() && e.IsDir() {
			s.logger.Warn("symlinked directory is snapshotted empty", "path", e.RelativePath)
		}
	}

	s.logger.Debug("snapshot diffing", "current", len(current), "previous", len(previous))
	plan := Diff(current, previous)
	if plan.Empty() && !req.Force {
		s.logger.Debug("snapshot no-op", "linked", len(plan.ToLink))
		return nil, &Error{Kind: KindNoActionTaken}
	}

	s.logger.Debug("snapshot building directories", "root", layout.VersionRoot())
	dirs, err := BuildDirectories(s.fsys, plan, layout.VersionRoot(), s.opts.Workers)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("snapshot materializing", "copy", len(plan.ToCopy), "link", len(plan.ToLink))
	m, err := Materialize(s.fsys, plan, layout, MaterializeOptions{
		LinkMode: s.opts.LinkMode,
		Workers:  s.opts.Workers,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		VersionID:   layout.VersionID,
		PreviousID:  previousID,
		TakenAt:     takenAt,
		Directories: dirs,
		Copied:      m.Copied,
		Linked:      m.Linked,
	}

	if err := s.record(req, result, current); err != nil {
		s.logger.Warn("recording version in catalog failed", "version", result.VersionID, "error", err)
	}

	s.logger.Info("snapshot complete",
		"version", result.VersionID,
		"previous", previousID,
		"copied", len(result.Copied),
		"linked", len(result.Linked),
		"directories", len(result.Directories))
	return result, nil
}

// listBoth lists the source tree and the previous version concurrently.
func (s *Service) listBoth(layout Layout) (current, previous []FileEntry, err error) {
	var g errgroup.Group
	g.Go(func() error {
		var err error
		current, err = ListTree(s.fsys, layout.SourceRoot, s.opts.Ignore, s.opts.Workers)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = ListTree(s.fsys, layout.PreviousRoot(), nil, s.opts.Workers)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return current, previous, nil
}

// record writes the version and its entries to the catalog.
func (s *Service) record(req SnapshotRequest, res *Result, current []FileEntry) error {
	if s.database == nil {
		return nil
	}

	byPath := make(map[string]FileEntry, len(current))
	for _, e := range current {
		byPath[e.RelativePath] = e
	}

	entries := make([]*VersionEntry, 0, len(res.Copied)+len(res.Linked)+len(res.Directories))
	for _, d := range res.Directories {
		if d == "." {
			continue
		}
		ve := &VersionEntry{VersionID: res.VersionID, RelativePath: d, Action: ActionDir}
		if e, ok := byPath[d]; ok {
			ve.Mode = e.Info.Mode().Perm()
			ve.ModTime = e.ModTime()
		}
		entries = append(entries, ve)
	}
	for _, c := range res.Copied {
		entries = append(entries, &VersionEntry{
			VersionID:    res.VersionID,
			RelativePath: c.RelativePath,
			Action:       ActionCopy,
			Size:         c.Size,
			Mode:         c.Mode,
			ModTime:      c.ModTime,
			Checksum:     c.Checksum,
		})
	}
	for _, l := range res.Linked {
		ve := &VersionEntry{
			VersionID:    res.VersionID,
			RelativePath: l.RelativePath,
			Action:       ActionLink,
			LinkVersion:  res.PreviousID,
		}
		if e, ok := byPath[l.RelativePath]; ok {
			ve.Size = e.Info.Size()
			ve.Mode = e.Info.Mode().Perm()
			ve.ModTime = e.ModTime()
		}
		entries = append(entries, ve)
	}

	version := &VersionRecord{
		ID:          res.VersionID,
		SourceRoot:  req.SourceRoot,
		BackupRoot:  req.BackupRoot,
		PreviousID:  res.PreviousID,
		CreatedAt:   res.TakenAt,
		Copied:      len(res.Copied),
		Linked:      len(res.Linked),
		Directories: len(res.Directories),
	}
	if err := s.database.RecordVersion(version, entries); err != nil {
		return fmt.Errorf("recording version %s: %w", res.VersionID, err)
	}
	return nil
}

// ListVersions returns every version under backupRoot, oldest first.
func (s *Service) ListVersions(backupRoot string) ([]string, error) {
	if backupRoot == "" {
		return nil, &Error{Kind: KindConfiguration}
	}
	return ListVersions(s.fsys, backupRoot)
}

// PathHistory returns how relativePath appeared in each recorded version.
func (s *Service) PathHistory(relativePath string) ([]*VersionEntry, error) {
	if s.database == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	entries, err := s.database.FindPathHistory(filepath.Clean(relativePath))
	if err != nil {
		return nil, fmt.Errorf("finding path history: %w", err)
	}
	return entries, nil
}

// History returns the most recent operations, newest first.
func (s *Service) History(limit int) ([]*Operation, error) {
	if s.database == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
