package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is a minimal abstraction over a Postgres connection pool.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface, which lets
// the repository tests run without a live database.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresRepository provides typed access to Postgres resources.
type PostgresRepository struct {
	pool   PgxPool
	logger *slog.Logger
	schema string
}

// New opens a repository for the given DSN. Postgres URLs get a pooled pgx
// connection; anything else is treated as an SQLite database path.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (Repository, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgres(ctx, databaseURL, schema, logger)
	}
	return NewSQLite(ctx, databaseURL, logger)
}

// NewPostgres opens a new connection pool to the database with the desired search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool PgxPool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo"),
	}
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx executes fn within a database transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// RunMigrations applies schema migrations on the connected database.
func (r *PostgresRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, r.pool, filesystem)
}
