package versioner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Manifest describes a mirrored version. It is stored next to the version's
// files so a vault can be restored from without the local catalog.
type Manifest struct {
	HostID     string          `yaml:"host_id"`
	VersionID  string          `yaml:"version"`
	PreviousID string          `yaml:"previous,omitempty"`
	SourceRoot string          `yaml:"source_root"`
	CreatedAt  time.Time       `yaml:"created_at"`
	Encrypted  bool            `yaml:"encrypted"`
	Entries    []ManifestEntry `yaml:"entries"`
}

// ManifestEntry is one path of a mirrored version. Paths are slash-separated.
type ManifestEntry struct {
	Path        string      `yaml:"path"`
	Action      EntryAction `yaml:"action"`
	Size        int64       `yaml:"size,omitempty"`
	Mode        uint32      `yaml:"mode,omitempty"`
	Checksum    string      `yaml:"checksum,omitempty"`
	LinkVersion string      `yaml:"link_version,omitempty"`
}

// Find returns the entry for a slash-separated path.
func (m *Manifest) Find(path string) (ManifestEntry, bool) {
	for _, e := range m.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// Push mirrors a recorded version to the vault: each copied file under
// ObjectKey, encrypted when an encryptor is configured, followed by the
// manifest. The manifest is written last so a version without one is
// known to be incomplete.
func (s *Service) Push(ctx context.Context, versionID string) (*Manifest, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("no vault configured")
	}
	if s.database == nil {
		return nil, fmt.Errorf("no catalog configured")
	}

	version, err := s.database.FindVersion(versionID)
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if version == nil {
		return nil, fmt.Errorf("version not recorded: %s", versionID)
	}
	entries, err := s.database.FindVersionEntries(versionID)
	if err != nil {
		return nil, fmt.Errorf("finding version entries: %w", err)
	}

	if err := s.requireMirrored(ctx, versionID, entries); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		HostID:     s.opts.HostID,
		VersionID:  versionID,
		PreviousID: version.PreviousID,
		SourceRoot: version.SourceRoot,
		CreatedAt:  version.CreatedAt,
		Encrypted:  s.encryptor != nil,
	}
	layout := Layout{BackupRoot: version.BackupRoot, VersionID: versionID}

	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Workers > 0 {
		g.SetLimit(s.opts.Workers)
	}
	for _, e := range entries {
		manifest.Entries = append(manifest.Entries, ManifestEntry{
			Path:        filepath.ToSlash(e.RelativePath),
			Action:      e.Action,
			Size:        e.Size,
			Mode:        uint32(e.Mode),
			Checksum:    e.Checksum,
			LinkVersion: e.LinkVersion,
		})
		if e.Action != ActionCopy {
			continue
		}
		g.Go(func() error {
			key := ObjectKey(s.opts.HostID, versionID, e.RelativePath)
			if err := s.pushFile(gctx, key, layout.Target(e.RelativePath)); err != nil {
				return fmt.Errorf("pushing %s: %w", e.RelativePath, err)
			}
			s.logger.Debug("file pushed", "path", e.RelativePath, "key", key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := s.vault.PutObject(ctx, ManifestKey(s.opts.HostID, versionID), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("uploading manifest: %w", err)
	}

	s.logger.Info("version pushed", "version", versionID, "entries", len(manifest.Entries), "encrypted", manifest.Encrypted)
	return manifest, nil
}

// requireMirrored checks that every version a link entry points at already
// has a manifest in the vault, so the pushed version can be fetched in full.
func (s *Service) requireMirrored(ctx context.Context, versionID string, entries []*VersionEntry) error {
	checked := make(map[string]bool)
	for _, e := range entries {
		if e.Action != ActionLink || e.LinkVersion == "" || checked[e.LinkVersion] {
			continue
		}
		checked[e.LinkVersion] = true
		err := s.vault.GetObject(ctx, ManifestKey(s.opts.HostID, e.LinkVersion), io.Discard)
		if errors.Is(err, ErrObjectNotFound) {
			return fmt.Errorf("version %s links to %s, which is not mirrored; push it first: %w", versionID, e.LinkVersion, err)
		}
		if err != nil {
			return fmt.Errorf("checking mirror of %s: %w", e.LinkVersion, err)
		}
	}
	return nil
}

// pushFile streams one file into the vault, through the encryptor if set.
func (s *Service) pushFile(ctx context.Context, key, path string) error {
	f, err := s.fsys.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	if s.encryptor == nil {
		return s.vault.PutObject(ctx, key, f)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.encryptor.Encrypt(f, pw))
	}()
	err = s.vault.PutObject(ctx, key, pr)
	pr.CloseWithError(err)
	return err
}

// FetchManifest downloads and decodes the manifest of a mirrored version.
func (s *Service) FetchManifest(ctx context.Context, versionID string) (*Manifest, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("no vault configured")
	}
	var buf bytes.Buffer
	if err := s.vault.GetObject(ctx, ManifestKey(s.opts.HostID, versionID), &buf); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("version %s is not mirrored: %w", versionID, err)
		}
		return nil, fmt.Errorf("downloading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(buf.Bytes(), &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

// Fetch restores one file of a mirrored version into w. Link entries are
// followed version by version until the copied content is found. dec is
// required when the holding version was pushed encrypted.
func (s *Service) Fetch(ctx context.Context, versionID, relativePath string, w io.Writer, dec DecryptionContext) error {
	rel := filepath.ToSlash(filepath.Clean(relativePath))
	seen := make(map[string]bool)

	for v := versionID; ; {
		if seen[v] {
			return fmt.Errorf("link cycle at version %s for %s", v, rel)
		}
		seen[v] = true

		m, err := s.FetchManifest(ctx, v)
		if err != nil {
			return err
		}
		e, ok := m.Find(rel)
		if !ok {
			return fmt.Errorf("%s is not in version %s", rel, v)
		}

		switch e.Action {
		case ActionLink:
			if e.LinkVersion == "" {
				return fmt.Errorf("link entry for %s in version %s has no target version", rel, v)
			}
			s.logger.Debug("following link", "path", rel, "from", v, "to", e.LinkVersion)
			v = e.LinkVersion
		case ActionCopy:
			return s.fetchObject(ctx, ObjectKey(m.HostID, v, rel), m.Encrypted, w, dec)
		default:
			return fmt.Errorf("%s is a directory in version %s", rel, v)
		}
	}
}

func (s *Service) fetchObject(ctx context.Context, key string, encrypted bool, w io.Writer, dec DecryptionContext) error {
	if !encrypted {
		if err := s.vault.GetObject(ctx, key, w); err != nil {
			return fmt.Errorf("downloading %s: %w", key, err)
		}
		return nil
	}
	if dec == nil {
		return fmt.Errorf("%s is encrypted: decryption context required", key)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.vault.GetObject(ctx, key, pw))
	}()
	err := dec.Decrypt(pr, w)
	pr.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("decrypting %s: %w", key, err)
	}
	return nil
}
