package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_add_index.sql":      {Data: []byte("CREATE INDEX x ON t(a);")},
		"002_second.sql":         {Data: []byte("SELECT 2;")},
		"001_initial_schema.sql": {Data: []byte("SELECT 1;")},
		"README.md":              {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial_schema", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 10, migrations[2].Version)
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	})
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := LoadMigrations(EmbeddedMigrations())
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS workflow_logs")
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Contains(t, migrations[1].SQL, "CREATE TABLE IF NOT EXISTS document_versions")
}

func TestDSN(t *testing.T) {
	dsn := DSN(Config{Path: "data/docflow.db"})
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_busy_timeout=5000")
}

func TestMigratorUp_Idempotent(t *testing.T) {
	logger := zap.NewNop()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 1}, logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	m := NewMigrator(db, logger)
	ran, err := m.Up(ctx, EmbeddedMigrations())
	require.NoError(t, err)
	assert.Equal(t, 2, ran)
	ran, err = m.Up(ctx, EmbeddedMigrations())
	require.NoError(t, err)
	assert.Zero(t, ran)

	versions, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	_, err = db.Exec(`INSERT INTO document_types (name, code) VALUES ('Memo', 'memo')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO route_steps (document_type_id, step_order, approver_role, created_at) VALUES (1, 1, 'rector', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO route_steps (document_type_id, step_order, approver_role, created_at) VALUES (1, 1, 'admin', CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "step order is unique per document type")
}
