package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-recap/internal/config"
)

func TestNilStoreReportsNotConfigured(t *testing.T) {
	var s *Store
	ctx := context.Background()

	_, err := s.ListRecentRuns(ctx, 5)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, s.InsertRun(ctx, RunRecord{ID: uuid.New()}, nil), ErrNotConfigured)
	assert.ErrorIs(t, s.UpsertPrices(ctx, uuid.New(), nil), ErrNotConfigured)
	_, _, err = s.TryAdvisoryLock(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	s.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{})
	assert.Error(t, err)

	_, err = NewPool(context.Background(), config.DatabaseConfig{DSN: "://not a dsn"})
	assert.Error(t, err)
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"010_b.sql", "002_a.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_a.sql", "010_b.sql"}, files)

	_, err = migrationFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestShippedMigrationsExist(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	assert.Contains(t, files, "001_init.sql")
}

func TestNullDecimal(t *testing.T) {
	assert.Nil(t, nullDecimal(decimal.NullDecimal{}))
	assert.Equal(t, "1.25", nullDecimal(decimal.NewNullDecimal(decimal.RequireFromString("1.25"))))
}
