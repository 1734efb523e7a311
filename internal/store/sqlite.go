package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/speedwagon-io/opcsnapshot/internal/config"
)

type sqliteBackend struct {
	dir string
}

func newSQLiteBackend(cfg config.StoreConfig) *sqliteBackend {
	return &sqliteBackend{dir: cfg.Dir}
}

func (b *sqliteBackend) provisioner(ctx context.Context) (Provisioner, error) {
	return &SQLiteProvisioner{dir: b.dir}, nil
}

func (b *sqliteBackend) connect(ctx context.Context, database string) (*sql.DB, error) {
	return openSQLite(ctx, sqlitePath(b.dir, database))
}

func (b *sqliteBackend) dialect(table string) dialect {
	t := quoteSQLiteIdent(table)
	idx := quoteSQLiteIdent("idx_" + table + "_timestamp")

	return dialect{
		createTable: fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				node_id TEXT NOT NULL,
				display_name TEXT,
				value TEXT,
				data_type TEXT,
				timestamp TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now')),
				quality TEXT
			);
			CREATE INDEX IF NOT EXISTS %s ON %s(timestamp);
		`, t, idx, t),
		insert: fmt.Sprintf(`
			INSERT INTO %s (node_id, display_name, value, data_type, quality)
			VALUES (?, ?, ?, ?, ?)
		`, t),
		latest: fmt.Sprintf(`
			SELECT id, node_id, display_name, value, data_type, timestamp, quality
			FROM %s
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		`, t),
		count: fmt.Sprintf("SELECT COUNT(*) FROM %s", t),
	}
}

// SQLiteProvisioner treats each database as a file named <name>.db in dir.
type SQLiteProvisioner struct {
	dir string
}

func NewSQLiteProvisioner(dir string) *SQLiteProvisioner {
	return &SQLiteProvisioner{dir: dir}
}

func (p *SQLiteProvisioner) DatabaseExists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(sqlitePath(p.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *SQLiteProvisioner) CreateDatabase(ctx context.Context, name string) error {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := openSQLite(ctx, sqlitePath(p.dir, name))
	if err != nil {
		return err
	}
	return db.Close()
}

func (p *SQLiteProvisioner) Close() error {
	return nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func sqlitePath(dir, name string) string {
	return filepath.Join(dir, name+".db")
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
