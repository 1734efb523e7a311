package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/speedwagon-io/opcsnapshot/internal/config"
	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

// Provisioner creates the target database from an administrative connection.
type Provisioner interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) error
	Close() error
}

type backend interface {
	provisioner(ctx context.Context) (Provisioner, error)
	connect(ctx context.Context, database string) (*sql.DB, error)
	dialect(table string) dialect
}

// dialect holds the driver specific statements for one table.
type dialect struct {
	createTable string
	insert      string
	latest      string
	count       string
	// returningID is set when insert yields the id as a row instead of LastInsertId.
	returningID bool
}

type Store struct {
	log     *slog.Logger
	db      *sql.DB
	table   string
	dialect dialect
}

// Open makes sure the configured database and table exist and returns a
// store connected to the target database.
func Open(ctx context.Context, log *slog.Logger, cfg config.StoreConfig) (*Store, error) {
	var b backend
	switch cfg.Driver {
	case config.DriverPostgres:
		b = newPostgresBackend(cfg)
	case config.DriverSQLite:
		b = newSQLiteBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	return open(ctx, log.With(slog.String("driver", cfg.Driver)), b, cfg.Database, cfg.Table)
}

func open(ctx context.Context, log *slog.Logger, b backend, database, table string) (*Store, error) {
	p, err := b.provisioner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to admin database: %w", err)
	}

	_, err = EnsureDatabase(ctx, log, p, database)
	if closeErr := p.Close(); closeErr != nil {
		log.Warn("failed to close admin connection", sl.Err(closeErr))
	}
	if err != nil {
		return nil, err
	}

	db, err := b.connect(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", database, err)
	}
	log.Info("connected to database", slog.String("database", database))

	s := &Store{
		log:     log,
		db:      db,
		table:   table,
		dialect: b.dialect(table),
	}

	if err := s.EnsureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// EnsureDatabase creates name unless the provisioner already finds it.
// It reports whether a create was issued.
func EnsureDatabase(ctx context.Context, log *slog.Logger, p Provisioner, name string) (bool, error) {
	exists, err := p.DatabaseExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up database %s: %w", name, err)
	}

	if exists {
		log.Info("database already exists", slog.String("database", name))
		return false, nil
	}

	if err := p.CreateDatabase(ctx, name); err != nil {
		return false, fmt.Errorf("failed to create database %s: %w", name, err)
	}

	log.Info("database created", slog.String("database", name))
	return true, nil
}

func (s *Store) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	s.log.Info("table ready", slog.String("table", s.table))
	return nil
}

// Record inserts one reading and returns the store assigned row id.
func (s *Store) Record(ctx context.Context, r model.Reading) (int64, error) {
	args := []any{r.NodeID, r.DisplayName, r.Value.String(), r.Value.TypeName(), r.Quality()}

	var id int64
	if s.dialect.returningID {
		if err := s.db.QueryRowContext(ctx, s.dialect.insert, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert reading %s: %w", r.NodeID, err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, s.dialect.insert, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading %s: %w", r.NodeID, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get row id for %s: %w", r.NodeID, err)
		}
	}

	s.log.Debug("reading stored", slog.String("node_id", r.NodeID), slog.Int64("id", id))
	return id, nil
}

// Latest returns up to limit rows, newest first.
func (s *Store) Latest(ctx context.Context, limit int) ([]model.StoredRow, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.latest, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest rows: %w", err)
	}
	defer rows.Close()

	var result []model.StoredRow
	for rows.Next() {
		var row model.StoredRow
		var displayName, value, dataType, quality sql.NullString
		var ts any

		if err := rows.Scan(&row.ID, &row.NodeID, &displayName, &value, &dataType, &ts, &quality); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row.Timestamp, err = parseTimestamp(ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp of row %d: %w", row.ID, err)
		}

		row.DisplayName = displayName.String
		row.Value = value.String
		row.DataType = dataType.String
		row.Quality = quality.String

		result = append(result, row)
	}

	return result, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, s.dialect.count).Scan(&count)
	return count, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func parseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts, nil
	case string:
		return time.Parse(time.RFC3339Nano, ts)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(ts))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}
