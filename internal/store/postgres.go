package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/lib/pq"
	"github.com/speedwagon-io/opcsnapshot/internal/config"
)

type postgresBackend struct {
	cfg config.StoreConfig
}

func newPostgresBackend(cfg config.StoreConfig) *postgresBackend {
	return &postgresBackend{cfg: cfg}
}

func (b *postgresBackend) provisioner(ctx context.Context) (Provisioner, error) {
	return NewPostgresProvisioner(ctx, postgresDSN(b.cfg, b.cfg.AdminDatabase))
}

func (b *postgresBackend) connect(ctx context.Context, database string) (*sql.DB, error) {
	return openPostgres(ctx, postgresDSN(b.cfg, database))
}

func (b *postgresBackend) dialect(table string) dialect {
	t := pq.QuoteIdentifier(table)
	idx := pq.QuoteIdentifier("idx_" + table + "_timestamp")

	return dialect{
		createTable: fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id SERIAL PRIMARY KEY,
				node_id VARCHAR(200) NOT NULL,
				display_name VARCHAR(200),
				value TEXT,
				data_type VARCHAR(50),
				timestamp TIMESTAMP DEFAULT NOW(),
				quality VARCHAR(50)
			);
			CREATE INDEX IF NOT EXISTS %s ON %s(timestamp);
		`, t, idx, t),
		insert: fmt.Sprintf(`
			INSERT INTO %s (node_id, display_name, value, data_type, quality)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, t),
		latest: fmt.Sprintf(`
			SELECT id, node_id, display_name, value, data_type, timestamp, quality
			FROM %s
			ORDER BY timestamp DESC, id DESC
			LIMIT $1
		`, t),
		count:       fmt.Sprintf("SELECT COUNT(*) FROM %s", t),
		returningID: true,
	}
}

// PostgresProvisioner looks up and creates databases through the
// administrative database of a PostgreSQL server.
type PostgresProvisioner struct {
	db *sql.DB
}

func NewPostgresProvisioner(ctx context.Context, dsn string) (*PostgresProvisioner, error) {
	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresProvisioner{db: db}, nil
}

func (p *PostgresProvisioner) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateDatabase cannot take the name as a bind parameter, so it is quoted.
func (p *PostgresProvisioner) CreateDatabase(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	return err
}

func (p *PostgresProvisioner) Close() error {
	return p.db.Close()
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return db, nil
}

func postgresDSN(cfg config.StoreConfig, database string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + database,
	}

	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}

	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}

	return u.String()
}
