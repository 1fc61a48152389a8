package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrationFilesAreSortedSQLOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.sql", "0001_a.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o700))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.sql", "0002_b.sql"}, files)

	_, err = migrationFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRunMigrationsWithoutPoolIsNoop(t *testing.T) {
	assert.NoError(t, RunMigrations(context.Background(), nil, "does-not-matter", zap.NewNop()))
}

func TestUnconfiguredBackends(t *testing.T) {
	ctx := context.Background()
	var pg *Postgres
	assert.False(t, pg.Enabled())
	assert.ErrorIs(t, pg.Ping(ctx), ErrNotConfigured)

	r := &Redis{}
	assert.False(t, r.Enabled())
	assert.ErrorIs(t, r.Ping(ctx), ErrNotConfigured)
	assert.NotPanics(t, r.Close)
}
