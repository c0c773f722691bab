package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"symver/internal/config"
	"symver/internal/database"
	"symver/internal/encryption"
	"symver/internal/fs"
	"symver/internal/vault"
	"symver/internal/versioner"
)

// Options tunes how an SVApp is constructed.
type Options struct {
	// Verbose lowers the console log level from warn to debug.
	Verbose bool
	// Clock overrides the wall clock. Nil means versioner.RealClock.
	Clock versioner.Clock
}

// SVApp is the application layer between the CLI and versioner.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the catalog lifecycle on Close.
type SVApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     versioner.Vault // nil when no vault is configured
	encryptor versioner.Encryptor
	clock     versioner.Clock
	service   *versioner.Service
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
}

// NewSVApp creates a fully wired SVApp from the given config.
// operation identifies the CLI command being run (e.g. "snapshot", "push").
// The caller must call Close when done.
func NewSVApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*SVApp, error) {
	clock := opts.Clock
	if clock == nil {
		clock = versioner.RealClock{}
	}

	linkMode, err := versioner.ParseLinkMode(cfg.LinkMode)
	if err != nil {
		return nil, err
	}

	var v versioner.Vault
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	consoleLevel := slog.LevelWarn
	if opts.Verbose {
		consoleLevel = slog.LevelDebug
	}
	logger, logFile, err := newLogger(cfg.LogDir, uuid.NewString()[:8], consoleLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := versioner.NewService(fs.NewOSFilesystem(), db, v, enc, &slogAdapter{l: logger}, clock, versioner.Options{
		HostID:   cfg.HostID,
		Workers:  cfg.Workers,
		LinkMode: linkMode,
	})

	return &SVApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		encryptor: enc,
		clock:     clock,
		service:   svc,
		op:        NewOperation(operation, ""),
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// persistOperation saves the operation to the catalog, giving it an auto-increment ID.
// This should only be called for catalog-mutating commands.
func (a *SVApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	id, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// Snapshot takes a new version. Non-empty source and backup override the
// configured roots; force is combined with force_version_when_empty.
func (a *SVApp) Snapshot(source, backup string, force bool) (*versioner.Result, error) {
	sourceRoot, err := a.resolveRoot(source, a.cfg.SourceRoot)
	if err != nil {
		return nil, err
	}
	backupRoot, err := a.resolveRoot(backup, a.cfg.BackupRoot)
	if err != nil {
		return nil, err
	}

	ignore, err := fs.NewSourceIgnoreMatcher(sourceRoot, a.cfg.Filesystem.Ignore)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	if err := a.persistOperation(sourceRoot + " -> " + backupRoot); err != nil {
		return nil, err
	}

	res, err := a.service.WithIgnore(ignore).Snapshot(versioner.SnapshotRequest{
		SourceRoot: sourceRoot,
		BackupRoot: backupRoot,
		Force:      force || a.cfg.ForceVersionWhenEmpty,
	})
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	a.op.VersionID = res.VersionID
	return res, nil
}

// Versions lists the versions under the backup root, oldest first.
func (a *SVApp) Versions(backup string) ([]string, error) {
	backupRoot, err := a.resolveRoot(backup, a.cfg.BackupRoot)
	if err != nil {
		return nil, err
	}
	return a.service.ListVersions(backupRoot)
}

// PathHistory returns the recorded actions for a path relative to the source root.
func (a *SVApp) PathHistory(relativePath string) ([]*versioner.VersionEntry, error) {
	return a.service.PathHistory(relativePath)
}

// History returns the most recent operations.
func (a *SVApp) History(limit int) ([]*versioner.Operation, error) {
	return a.service.History(limit)
}

// Verify re-checks the files of a recorded version.
func (a *SVApp) Verify(versionID string) (*versioner.VerifyReport, error) {
	return a.service.Verify(versionID)
}

// Push mirrors a version to the configured vault.
func (a *SVApp) Push(ctx context.Context, versionID string) (*versioner.Manifest, error) {
	if err := a.persistOperation(versionID); err != nil {
		return nil, err
	}
	m, err := a.service.Push(ctx, versionID)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	a.op.VersionID = versionID
	return m, nil
}

// Fetch restores one file of a mirrored version into w. passphrase is only
// called when the version was pushed encrypted.
func (a *SVApp) Fetch(ctx context.Context, versionID, relativePath string, w io.Writer, passphrase func() (string, error)) error {
	m, err := a.service.FetchManifest(ctx, versionID)
	if err != nil {
		return err
	}

	var dec versioner.DecryptionContext
	if m.Encrypted {
		if a.encryptor == nil {
			return fmt.Errorf("version %s is encrypted but no encryption is configured", versionID)
		}
		pass, err := passphrase()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		dec, err = a.encryptor.Unlock(pass)
		if err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return a.service.Fetch(ctx, versionID, relativePath, w, dec)
}

// resolveRoot picks override over configured and makes it absolute.
func (a *SVApp) resolveRoot(override, configured string) (string, error) {
	p := configured
	if override != "" {
		p = override
	}
	if p == "" {
		return "", &versioner.Error{Kind: versioner.KindConfiguration}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return abs, nil
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record and, when a vault
// is configured, uploads a snapshot of the catalog to it.
// For non-persisted operations: just closes the database.
func (a *SVApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.op.VersionID, a.clock.Now()); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		if a.vault != nil {
			if err := a.uploadCatalog(context.Background()); err != nil {
				keep(err)
			}
		}
	}

	if err := a.db.Close(); err != nil {
		keep(fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// uploadCatalog snapshots the catalog to a temp file and stores it under CatalogKey.
func (a *SVApp) uploadCatalog(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "symver-catalog-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for catalog backup: %w", err)
	}
	defer os.RemoveAll(dir)

	tmpPath := filepath.Join(dir, "catalog.db")
	if err := a.db.BackupTo(tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening catalog backup for upload: %w", err)
	}
	defer f.Close()

	key := versioner.CatalogKey(a.cfg.HostID)
	if err := a.vault.PutObject(ctx, key, f); err != nil {
		return fmt.Errorf("uploading catalog to vault: %w", err)
	}
	a.logger.Debug("catalog uploaded", "key", key)
	return nil
}
