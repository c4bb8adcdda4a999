package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "state", "widget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(" ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	_, ok, err := s.GetItem(ctx, "chatHistory")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetItem(ctx, "chatHistory", `[1]`))
	v, ok, err := s.GetItem(ctx, "chatHistory")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[1]`, v)

	require.NoError(t, s.SetItem(ctx, "chatHistory", `[2]`))
	v, _, err = s.GetItem(ctx, "chatHistory")
	require.NoError(t, err)
	require.Equal(t, `[2]`, v)

	require.NoError(t, s.RemoveItem(ctx, "chatHistory"))
	require.NoError(t, s.RemoveItem(ctx, "chatHistory"))
	_, ok, err = s.GetItem(ctx, "chatHistory")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.SetItem(ctx, "chatHistory", `["kept"]`))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.GetItem(ctx, "chatHistory")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `["kept"]`, v)
	require.Equal(t, path, s.Path())
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SetItem(ctx, "k", "v"))
	v, ok, err := s.GetItem(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := m.GetItem(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.SetItem(ctx, "k", "v1"))
	require.NoError(t, m.SetItem(ctx, "k", "v2"))
	v, ok, err := m.GetItem(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)

	require.NoError(t, m.RemoveItem(ctx, "k"))
	require.NoError(t, m.RemoveItem(ctx, "k"))
	_, ok, _ = m.GetItem(ctx, "k")
	require.False(t, ok)
}
