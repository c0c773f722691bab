package versioner

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
)

// ErrObjectNotFound is returned (wrapped) by Vault.GetObject for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// Vault is a mirror destination for finished versions. Keys are
// slash-separated. Data is streamed so large files never sit in memory.
type Vault interface {
	// PutObject stores everything read from r under key, replacing any
	// existing object.
	PutObject(ctx context.Context, key string, r io.Reader) error

	// GetObject writes the object stored under key to w.
	GetObject(ctx context.Context, key string, w io.Writer) error

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// ObjectKey is where the content of a copied file lives in a vault.
func ObjectKey(hostID, versionID, relativePath string) string {
	return path.Join(hostID, versionID, "files", filepath.ToSlash(relativePath))
}

// ManifestKey is where a version's manifest lives in a vault.
func ManifestKey(hostID, versionID string) string {
	return path.Join(hostID, versionID, "manifest.yaml")
}

// CatalogKey is where the catalog snapshot of a host lives in a vault.
func CatalogKey(hostID string) string {
	return path.Join(hostID, "catalog.db")
}
