package app_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symver/internal/app"
	"symver/internal/config"
	"symver/internal/testutil"
	"symver/internal/versioner"
)

type env struct {
	cfg      *config.Config
	clock    *testutil.StubClock
	source   string
	backup   string
	vaultDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	e := &env{
		cfg:      config.NewConfig("test-host", filepath.Join(base, "home")),
		clock:    testutil.FixedClock(),
		source:   filepath.Join(base, "source"),
		backup:   filepath.Join(base, "backup"),
		vaultDir: filepath.Join(base, "vault"),
	}
	testutil.MkdirAll(t, e.source)
	testutil.MkdirAll(t, e.backup)
	e.cfg.SourceRoot = e.source
	e.cfg.BackupRoot = e.backup
	e.cfg.Encryption.Type = "test"
	e.cfg.Vaults = []config.VaultConfig{{Type: "filesystem", Name: "local", FSVaultRoot: e.vaultDir}}
	return e
}

func (e *env) open(t *testing.T, operation string) *app.SVApp {
	t.Helper()
	a, err := app.NewSVApp(context.Background(), e.cfg, operation, app.Options{Clock: e.clock})
	require.NoError(t, err)
	return a
}

func TestSVApp_SnapshotRecordsOperationAndUploadsCatalog(t *testing.T) {
	e := newEnv(t)
	testutil.WriteTree(t, e.source, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "bravo",
	})

	a := e.open(t, "snapshot")
	res, err := a.Snapshot("", "", false)
	require.NoError(t, err)
	assert.Equal(t, "20240115103000", res.VersionID)
	assert.Len(t, res.Copied, 2)
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(e.vaultDir, "test-host", "catalog.db"))
	assert.NoError(t, err, "catalog should be uploaded after a persisted operation")

	e.clock.Advance(time.Minute)
	a = e.open(t, "history")
	defer a.Close()

	ops, err := a.History(10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "snapshot", ops[0].Operation)
	assert.Equal(t, app.StatusSuccess, ops[0].Status)
	assert.Equal(t, res.VersionID, ops[0].VersionID)
	assert.Equal(t, e.source+" -> "+e.backup, ops[0].Parameters)

	hist, err := a.PathHistory(filepath.Join("sub", "b.txt"))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, versioner.ActionCopy, hist[0].Action)
}

func TestSVApp_UnchangedSnapshotIsNoOp(t *testing.T) {
	e := newEnv(t)
	testutil.WriteTree(t, e.source, map[string]string{"a.txt": "alpha"})

	a := e.open(t, "snapshot")
	_, err := a.Snapshot("", "", false)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	e.clock.Advance(time.Minute)
	a = e.open(t, "snapshot")
	_, err = a.Snapshot("", "", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, versioner.ErrNoActionTaken))
	require.NoError(t, a.Close())

	a = e.open(t, "history")
	defer a.Close()
	ops, err := a.History(10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, app.StatusNoOp, ops[0].Status)
	assert.Empty(t, ops[0].VersionID)

	versions, err := a.Versions("")
	require.NoError(t, err)
	assert.Equal(t, []string{"20240115103000"}, versions)
}

func TestSVApp_FlagsOverrideConfig(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(t.TempDir(), "other")
	testutil.WriteTree(t, other, map[string]string{"x.txt": "x"})

	a := e.open(t, "snapshot")
	defer a.Close()

	res, err := a.Snapshot(other, "", false)
	require.NoError(t, err)
	require.Len(t, res.Copied, 1)
	assert.Equal(t, "x.txt", res.Copied[0].RelativePath)
	assert.Equal(t, "x", testutil.ReadFile(t, filepath.Join(e.backup, res.VersionID, "x.txt")))
}

func TestSVApp_ForceFromConfig(t *testing.T) {
	e := newEnv(t)
	e.cfg.ForceVersionWhenEmpty = true

	a := e.open(t, "snapshot")
	defer a.Close()

	res, err := a.Snapshot("", "", false)
	require.NoError(t, err)
	assert.Empty(t, res.Copied)
	assert.DirExists(t, filepath.Join(e.backup, res.VersionID))
}

func TestSVApp_SnapshotAppliesIgnoreRules(t *testing.T) {
	e := newEnv(t)
	e.cfg.Filesystem.Ignore = []string{"*.tmp"}
	testutil.WriteTree(t, e.source, map[string]string{
		"keep.txt":      "keep",
		"scratch.tmp":   "drop",
		"cache/x.bin":   "drop",
		".symverignore": "cache\n",
	})

	a := e.open(t, "snapshot")
	defer a.Close()

	res, err := a.Snapshot("", "", false)
	require.NoError(t, err)
	require.Len(t, res.Copied, 1)
	assert.Equal(t, "keep.txt", res.Copied[0].RelativePath)
	assert.NoDirExists(t, filepath.Join(e.backup, res.VersionID, "cache"))
}

func TestSVApp_MissingRootsAreConfigurationErrors(t *testing.T) {
	e := newEnv(t)
	e.cfg.SourceRoot = ""

	a := e.open(t, "snapshot")
	defer a.Close()

	_, err := a.Snapshot("", "", false)
	assert.Equal(t, versioner.KindConfiguration, versioner.KindOf(err))
}

func TestSVApp_PushAndFetch(t *testing.T) {
	e := newEnv(t)
	testutil.WriteTree(t, e.source, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "bravo",
	})

	a := e.open(t, "snapshot")
	first, err := a.Snapshot("", "", false)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	e.clock.Advance(time.Hour)
	testutil.WriteFile(t, e.source, "a.txt", "alpha-2", testutil.DefaultModTime.Add(time.Hour))
	a = e.open(t, "snapshot")
	second, err := a.Snapshot("", "", false)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a = e.open(t, "push")
	_, err = a.Push(context.Background(), first.VersionID)
	require.NoError(t, err)
	m, err := a.Push(context.Background(), second.VersionID)
	require.NoError(t, err)
	assert.True(t, m.Encrypted)
	require.NoError(t, a.Close())

	a = e.open(t, "fetch")
	defer a.Close()

	asked := 0
	passphrase := func() (string, error) {
		asked++
		return "unused", nil
	}

	var buf bytes.Buffer
	require.NoError(t, a.Fetch(context.Background(), second.VersionID, "a.txt", &buf, passphrase))
	assert.Equal(t, "alpha-2", buf.String())

	buf.Reset()
	require.NoError(t, a.Fetch(context.Background(), second.VersionID, filepath.Join("sub", "b.txt"), &buf, passphrase))
	assert.Equal(t, "bravo", buf.String(), "linked file should resolve to the earlier version")
	assert.Equal(t, 2, asked)
}

func TestSVApp_FetchWithoutEncryptionNeverAsks(t *testing.T) {
	e := newEnv(t)
	e.cfg.Encryption.Type = "none"
	testutil.WriteTree(t, e.source, map[string]string{"a.txt": "alpha"})

	a := e.open(t, "snapshot")
	res, err := a.Snapshot("", "", false)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a = e.open(t, "push")
	_, err = a.Push(context.Background(), res.VersionID)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a = e.open(t, "fetch")
	defer a.Close()

	var buf bytes.Buffer
	err = a.Fetch(context.Background(), res.VersionID, "a.txt", &buf, func() (string, error) {
		t.Fatal("passphrase should not be requested")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alpha", buf.String())
}

func TestSVApp_VerifyDetectsTampering(t *testing.T) {
	e := newEnv(t)
	testutil.WriteTree(t, e.source, map[string]string{"a.txt": "alpha"})

	a := e.open(t, "snapshot")
	defer a.Close()

	res, err := a.Snapshot("", "", false)
	require.NoError(t, err)

	report, err := a.Verify(res.VersionID)
	require.NoError(t, err)
	assert.True(t, report.OK())

	require.NoError(t, os.WriteFile(filepath.Join(e.backup, res.VersionID, "a.txt"), []byte("tampered"), 0644))
	report, err = a.Verify(res.VersionID)
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "a.txt", report.Issues[0].RelativePath)
}

func TestNewSVApp_InvalidLinkMode(t *testing.T) {
	e := newEnv(t)
	e.cfg.LinkMode = "reflink"

	_, err := app.NewSVApp(context.Background(), e.cfg, "snapshot", app.Options{})
	assert.Error(t, err)
}
