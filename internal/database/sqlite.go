package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"symver/internal/database/migrations"
	"symver/internal/versioner"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements versioner.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the catalog at path and migrates it to the latest
// schema. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is configured and migrated.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pooled connection to :memory: would be a separate empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// SQLite leaves foreign keys off by default.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Operation log

func (s *SQLiteDatabase) CreateOperation(operation, parameters string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, 'running', ?)",
		operation, parameters, startedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading operation id: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status, versionID string, finishedAt time.Time) error {
	res, err := s.db.Exec(
		"UPDATE operations SET status = ?, version_id = ?, finished_at = ? WHERE id = ?",
		status, versionID, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("operation not found: %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*versioner.Operation, error) {
	rows, err := s.db.Query(`
		SELECT id, operation, parameters, status, version_id, started_at, finished_at
		FROM operations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*versioner.Operation
	for rows.Next() {
		var (
			op       versioner.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.VersionID, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// MaxOperationID returns the id of the newest operation, or 0 for an empty log.
func (s *SQLiteDatabase) MaxOperationID() (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(id) FROM operations").Scan(&id); err != nil {
		return 0, fmt.Errorf("finding max operation id: %w", err)
	}
	return id.Int64, nil
}

// Versions

// RecordVersion stores version and its entries in one transaction. Recording
// an id that already exists replaces the earlier record and its entries.
func (s *SQLiteDatabase) RecordVersion(version *versioner.VersionRecord, entries []*versioner.VersionEntry) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM version_entries WHERE version_id = ?", version.ID); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (id, source_root, backup_root, previous_id, created_at, copied, linked, directories)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source_root = excluded.source_root,
			backup_root = excluded.backup_root,
			previous_id = excluded.previous_id,
			created_at  = excluded.created_at,
			copied      = excluded.copied,
			linked      = excluded.linked,
			directories = excluded.directories`,
		version.ID, version.SourceRoot, version.BackupRoot, version.PreviousID,
		version.CreatedAt.UTC(), version.Copied, version.Linked, version.Directories)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO version_entries (version_id, relative_path, action, size, mode, mtime, checksum, link_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing entry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var mtime sql.NullTime
		if !e.ModTime.IsZero() {
			mtime = sql.NullTime{Time: e.ModTime.UTC(), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, version.ID, e.RelativePath, string(e.Action),
			e.Size, uint32(e.Mode), mtime, e.Checksum, e.LinkVersion)
		if err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.RelativePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindVersion(id string) (*versioner.VersionRecord, error) {
	var v versioner.VersionRecord
	err := s.db.QueryRow(`
		SELECT id, source_root, backup_root, previous_id, created_at, copied, linked, directories
		FROM versions WHERE id = ?`, id).
		Scan(&v.ID, &v.SourceRoot, &v.BackupRoot, &v.PreviousID, &v.CreatedAt, &v.Copied, &v.Linked, &v.Directories)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return &v, nil
}

func (s *SQLiteDatabase) FindVersionEntries(versionID string) ([]*versioner.VersionEntry, error) {
	return s.queryEntries(`
		SELECT version_id, relative_path, action, size, mode, mtime, checksum, link_version
		FROM version_entries
		WHERE version_id = ?
		ORDER BY relative_path`, versionID)
}

func (s *SQLiteDatabase) FindPathHistory(relativePath string) ([]*versioner.VersionEntry, error) {
	return s.queryEntries(`
		SELECT version_id, relative_path, action, size, mode, mtime, checksum, link_version
		FROM version_entries
		WHERE relative_path = ?
		ORDER BY version_id`, relativePath)
}

func (s *SQLiteDatabase) queryEntries(query string, args ...any) ([]*versioner.VersionEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []*versioner.VersionEntry
	for rows.Next() {
		var (
			e      versioner.VersionEntry
			action string
			mode   uint32
			mtime  sql.NullTime
		)
		if err := rows.Scan(&e.VersionID, &e.RelativePath, &action, &e.Size, &mode, &mtime, &e.Checksum, &e.LinkVersion); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Action = versioner.EntryAction(action)
		e.Mode = fs.FileMode(mode)
		if mtime.Valid {
			e.ModTime = mtime.Time
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	return entries, nil
}

// Path returns the database file path, empty for wrapped connections.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements versioner.Database.
var _ versioner.Database = (*SQLiteDatabase)(nil)
