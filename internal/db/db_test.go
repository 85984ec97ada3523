package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "facegate.db")
	conn, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	defer conn.Close()

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations;`).Scan(&n))
	assert.Equal(t, 2, n)

	// Idempotent on reopen
	applied, err := Migrate(context.Background(), conn, zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, applied)
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations;`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0002_access_events.sql")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = parseVersion("init.sql")
	assert.Error(t, err)
	_, err = parseVersion("v2_rooms.sql")
	assert.Error(t, err)
}

func TestLoadMigrationsOrdersAndRejectsDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0010_later.sql": {Data: []byte("SELECT 10;")},
		"m/0002_rooms.sql": {Data: []byte("SELECT 2;")},
		"m/README.md":      {Data: []byte("notes")},
	}
	steps, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 2, steps[0].Version)
	assert.Equal(t, "0010_later.sql", steps[1].Name)

	fsys["m/02_again.sql"] = &fstest.MapFile{Data: []byte("SELECT 2;")}
	_, err = LoadMigrations(fsys, "m")
	assert.ErrorContains(t, err, "share version 2")
}

func TestFailedMigrationRollsBack(t *testing.T) {
	conn, err := Open(context.Background(), Config{DSN: "file:test_rollback?mode=memory&cache=shared"})
	require.NoError(t, err)
	defer conn.Close()

	steps := []Migration{
		{Version: 100, Name: "0100_ok.sql", SQL: `CREATE TABLE extra (id INTEGER);`},
		{Version: 101, Name: "0101_bad.sql", SQL: `CREATE TABLE half (id INTEGER); NOT SQL;`},
	}
	applied, err := apply(context.Background(), conn, steps, zerolog.Nop())
	assert.ErrorContains(t, err, "0101_bad.sql")
	assert.Equal(t, 1, applied)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version >= 100;`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'half';`).Scan(&n))
	assert.Zero(t, n, "the failed step leaves nothing behind")
}

func TestWorkerCommitsAndRollsBack(t *testing.T) {
	conn, err := Open(context.Background(), Config{DSN: "file:test_worker?mode=memory&cache=shared"})
	require.NoError(t, err)
	defer conn.Close()
	w := NewWorker(conn)

	ctx := context.Background()
	require.NoError(t, w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO rooms(id, name) VALUES ('1', 'Lab');`)
		return err
	}))

	boom := errors.New("boom")
	err = w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO rooms(id, name) VALUES ('2', 'Office');`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM rooms;`).Scan(&n))
	assert.Equal(t, 1, n)

	w.Close()
	w.Close()
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.ErrorIs(t, w.Do(cctx, func(context.Context, *sql.Tx) error { return nil }), ErrWorkerClosed)
}
