package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "state.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMany(ctx, map[string]string{KeyToken: "t1", KeyRole: "admin"}))
	require.NoError(t, s.SetMany(ctx, map[string]string{KeyToken: "t2"}))

	v, ok, err := s.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t2", v)

	require.NoError(t, s.Delete(ctx, KeyToken, KeyRole))
	require.NoError(t, s.Delete(ctx, KeyToken, KeyRole))

	_, ok, err = s.Get(ctx, KeyRole)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	assert.Equal(t, 4, m.Writes())
}

func TestSQLite(t *testing.T) {
	s, _ := tempSQLite(t)
	exerciseStore(t, s)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	s, path := tempSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.SetMany(ctx, map[string]string{KeyToken: "t1", KeyRole: "user"}))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, KeyRole)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user", v)
}
