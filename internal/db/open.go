// Package db opens the worker's SQLite database, applies embedded migrations
// and serializes writes through a single worker goroutine.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	defaultPath = "./data/facegate.db"
	pingTimeout = 3 * time.Second
)

// filePragmas apply to on-disk databases. WAL lets the API read the audit
// log while the pipeline appends to it.
var filePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

type Config struct {
	Path   string // defaults to ./data/facegate.db
	DSN    string // overrides Path; tests use shared in-memory databases
	Logger *zerolog.Logger
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return c.Logger.With().Str("component", "db").Logger()
}

func (c Config) dsn() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	path := c.Path
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create database dir for %s: %w", path, err)
	}
	pragmas := make([]string, len(filePragmas))
	for i, p := range filePragmas {
		pragmas[i] = "_pragma=" + p
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&"), nil
}

// Open connects, checks the connection and brings the schema up to date.
// Writes go through one connection; see Worker.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	logger := cfg.logger()
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	applied, err := Migrate(ctx, conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info().
		Str("path", cfg.Path).
		Bool("memory", cfg.DSN != "").
		Int("migrations_applied", applied).
		Msg("Database ready")
	return conn, nil
}
