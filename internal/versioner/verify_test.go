package versioner_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symver/internal/testutil"
)

func TestService_Verify(t *testing.T) {
	h := newHarness(t, nil, testOptions())
	testutil.WriteTree(t, h.source, map[string]string{"a.txt": "alpha", "b.txt": "bravo", "sub/c.txt": "charlie"})
	v1 := h.next(t, false)
	testutil.WriteFile(t, h.source, "a.txt", "alpha v2", testutil.DefaultModTime.Add(time.Hour))
	v2 := h.next(t, false)

	t.Run("clean version", func(t *testing.T) {
		report, err := h.svc.Verify(v2.VersionID)
		require.NoError(t, err)
		assert.True(t, report.OK())
		assert.Equal(t, 3, report.Checked)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := h.svc.Verify("20000101000000")
		assert.Error(t, err)
	})

	t.Run("tampered, missing and broken entries are reported in path order", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(h.backup, v1.VersionID, "b.txt"), []byte("tampered"), 0644))
		require.NoError(t, os.Remove(filepath.Join(h.backup, v1.VersionID, "sub", "c.txt")))

		report, err := h.svc.Verify(v1.VersionID)
		require.NoError(t, err)
		require.Len(t, report.Issues, 2)
		assert.Equal(t, "b.txt", report.Issues[0].RelativePath)
		assert.Contains(t, report.Issues[0].Problem, "checksum mismatch")
		assert.Equal(t, filepath.Join("sub", "c.txt"), report.Issues[1].RelativePath)
		assert.Contains(t, report.Issues[1].Problem, "missing")

		report, err = h.svc.Verify(v2.VersionID)
		require.NoError(t, err)
		require.Len(t, report.Issues, 1, "the link into the earlier version is now dangling")
		assert.Equal(t, filepath.Join("sub", "c.txt"), report.Issues[0].RelativePath)
		assert.Contains(t, report.Issues[0].Problem, "broken link")
	})
}
