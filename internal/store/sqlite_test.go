package store_test

import (
	"context"
	"testing"

	"github.com/serroba/shortlink/internal/migrations"
	"github.com/serroba/shortlink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	db, err := store.OpenSQLite("file::memory:")
	require.NoError(t, err)

	m, err := migrations.NewSQLite(db, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	s := store.NewSQLiteStore(db)
	t.Cleanup(func() { _ = s.Shutdown() })

	return s
}

func TestSQLiteStore(t *testing.T) {
	runRepositoryTests(t, func(t *testing.T) linkStore {
		return newSQLiteStore(t)
	})
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := newSQLiteStore(t)

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Shutdown())
	assert.Error(t, s.Ping(context.Background()))
}
