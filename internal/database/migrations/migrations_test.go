package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryDB returns a single-connection in-memory database with foreign keys on.
func memoryDB(t *testing.T, migrated bool) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	if migrated {
		require.NoError(t, MigrateUp(db))
	}
	return db
}

func TestMigrateUp_CreatesCatalogTables(t *testing.T) {
	db := memoryDB(t, true)

	for _, table := range []string{"operations", "versions", "version_entries", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := memoryDB(t, true)

	require.NoError(t, MigrateUp(db), "second run")
	assert.NoError(t, CheckDBMigrationStatus(db))
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("unmigrated database needs migration", func(t *testing.T) {
		err := CheckDBMigrationStatus(memoryDB(t, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "needs migration")
	})

	t.Run("migrated database is current", func(t *testing.T) {
		assert.NoError(t, CheckDBMigrationStatus(memoryDB(t, true)))
	})

	t.Run("dirty database is reported", func(t *testing.T) {
		db := memoryDB(t, true)
		_, err := db.Exec("UPDATE schema_migrations SET dirty = 1")
		require.NoError(t, err)

		err = CheckDBMigrationStatus(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dirty")
	})
}

func TestSchemaConstraints(t *testing.T) {
	const version = `INSERT INTO versions (id, source_root, backup_root, created_at)
		VALUES ('20240115103000', '/src', '/backup', datetime('now'))`
	const entry = `INSERT INTO version_entries (version_id, relative_path, action)
		VALUES ('20240115103000', 'a.txt', 'copy')`

	tests := []struct {
		name  string
		setup []string
		stmt  string
	}{
		{
			name: "entry needs a recorded version",
			stmt: entry,
		},
		{
			name:  "unknown action is rejected",
			setup: []string{version},
			stmt: `INSERT INTO version_entries (version_id, relative_path, action)
				VALUES ('20240115103000', 'a.txt', 'move')`,
		},
		{
			name:  "path is unique per version",
			setup: []string{version, entry},
			stmt:  entry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memoryDB(t, true)
			for _, s := range tt.setup {
				_, err := db.Exec(s)
				require.NoError(t, err)
			}
			_, err := db.Exec(tt.stmt)
			assert.Error(t, err)
		})
	}
}

func TestSchema_DeletingVersionCascades(t *testing.T) {
	db := memoryDB(t, true)

	_, err := db.Exec(`INSERT INTO versions (id, source_root, backup_root, created_at)
		VALUES ('20240115103000', '/src', '/backup', datetime('now'))`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO version_entries (version_id, relative_path, action)
		VALUES ('20240115103000', 'a.txt', 'copy')`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM versions WHERE id = '20240115103000'")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM version_entries").Scan(&n))
	assert.Zero(t, n)
}

func TestLatestVersion(t *testing.T) {
	got, err := LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), got)
}
