package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunsMigrations(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"sessions", "bindings", "schema_migrations"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")

	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopening must not re-run migrations
	s, err = New(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestPingAfterClose(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, s.Ping())
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping())
	assert.Nil(t, s.DB())
}

func TestCloseTwice(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
