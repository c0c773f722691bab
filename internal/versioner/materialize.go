package versioner

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// LinkMode selects how unchanged files point at the previous version.
type LinkMode string

const (
	LinkSymlink  LinkMode = "symlink"
	LinkHardlink LinkMode = "hardlink"
)

// ParseLinkMode validates a configured link mode. Empty means symlink.
func ParseLinkMode(s string) (LinkMode, error) {
	switch LinkMode(s) {
	case "", LinkSymlink:
		return LinkSymlink, nil
	case LinkHardlink:
		return LinkHardlink, nil
	default:
		return "", fmt.Errorf("unknown link mode: %q", s)
	}
}

// CopiedFile describes a file whose content was copied into the new version.
type CopiedFile struct {
	RelativePath string
	Size         int64
	Mode         fs.FileMode
	ModTime      time.Time
	Checksum     string // xxh3-128, hex
}

// LinkedFile describes a link created in the new version.
type LinkedFile struct {
	RelativePath string
	Target       string
}

// Materialized is what Materialize wrote.
type Materialized struct {
	Copied []CopiedFile
	Linked []LinkedFile
}

// MaterializeOptions tunes Materialize.
type MaterializeOptions struct {
	LinkMode LinkMode
	Workers  int
}

// Materialize runs the copy and link halves of a plan concurrently. The
// version's directories must already exist. A failure in one half does not
// stop the other; when both fail the errors are joined.
func Materialize(fsys Filesystem, plan Plan, layout Layout, opts MaterializeOptions) (*Materialized, error) {
	var (
		out              Materialized
		copyErr, linkErr error
		wg               sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Copied, copyErr = CopyFiles(fsys, plan.CopyCandidates(), layout, opts.Workers)
	}()
	go func() {
		defer wg.Done()
		out.Linked, linkErr = LinkFiles(fsys, plan.LinkCandidates(), layout, opts.LinkMode, opts.Workers)
	}()
	wg.Wait()

	switch {
	case copyErr != nil && linkErr != nil:
		return nil, errors.Join(copyErr, linkErr)
	case copyErr != nil:
		return nil, copyErr
	case linkErr != nil:
		return nil, linkErr
	}
	return &out, nil
}

// CopyFiles copies each entry from the source root into the new version,
// preserving permissions and modification time.
func CopyFiles(fsys Filesystem, entries []FileEntry, layout Layout, workers int) ([]CopiedFile, error) {
	copied := make([]CopiedFile, len(entries))

	g := newGroup(workers)
	for i, e := range entries {
		g.Go(func() error {
			c, err := copyFile(fsys, layout.Source(e.RelativePath), layout.Target(e.RelativePath), e.Info)
			if err != nil {
				return ioFailure(e.RelativePath, err)
			}
			c.RelativePath = e.RelativePath
			copied[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return copied, nil
}

// LinkFiles links each entry in the new version to the same relative path in
// the immediately preceding version. Without a previous version it does nothing.
func LinkFiles(fsys Filesystem, entries []FileEntry, layout Layout, mode LinkMode, workers int) ([]LinkedFile, error) {
	if layout.PreviousID == "" {
		return nil, nil
	}

	linked := make([]LinkedFile, len(entries))

	g := newGroup(workers)
	for i, e := range entries {
		g.Go(func() error {
			target := layout.Previous(e.RelativePath)
			dst := layout.Target(e.RelativePath)

			var err error
			if mode == LinkHardlink {
				err = fsys.Link(target, dst)
			} else {
				err = fsys.Symlink(target, dst)
			}
			if err != nil {
				return ioFailure(e.RelativePath, err)
			}
			linked[i] = LinkedFile{RelativePath: e.RelativePath, Target: target}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return linked, nil
}

// copyFile streams src to dst, hashing the bytes on the way through.
func copyFile(fsys Filesystem, src, dst string, info fs.FileInfo) (CopiedFile, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return CopiedFile{}, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := fsys.Create(dst, info.Mode().Perm())
	if err != nil {
		return CopiedFile{}, fmt.Errorf("creating target: %w", err)
	}

	h := xxh3.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		out.Close()
		return CopiedFile{}, fmt.Errorf("copying content: %w", err)
	}
	if err := out.Close(); err != nil {
		return CopiedFile{}, fmt.Errorf("closing target: %w", err)
	}

	if err := fsys.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return CopiedFile{}, fmt.Errorf("setting file times: %w", err)
	}

	return CopiedFile{
		Size:     n,
		Mode:     info.Mode().Perm(),
		ModTime:  info.ModTime(),
		Checksum: checksumHex(h),
	}, nil
}

func checksumHex(h *xxh3.Hasher) string {
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}

// Checksum returns the xxh3-128 hex digest of everything read from r.
func Checksum(r io.Reader) (string, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return checksumHex(h), nil
}
