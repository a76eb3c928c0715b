package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	// Registers the postgres dialect with goqu.
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	// Registers the postgres driver with database/sql.
	_ "github.com/lib/pq"

	"github.com/kailas-cloud/trialdex/internal/db"
)

const table = "trials"

// Config holds connection parameters for the Postgres store.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Dimensions is the fixed vector width of the embedding column.
	Dimensions int
}

// Store is the trial record store over Postgres with pgvector.
type Store struct {
	db   *sql.DB
	dims int
	q    goqu.DialectWrapper
}

// NewStore opens a connection pool. It does not wait for the server; see WaitForReady.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}

	conn, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return NewStoreWithDB(conn, cfg.Dimensions), nil
}

// NewStoreWithDB wraps an existing handle. Used by tests with sqlmock.
func NewStoreWithDB(conn *sql.DB, dims int) *Store {
	return &Store{db: conn, dims: dims, q: goqu.Dialect("postgres")}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// sqlBuilder is any goqu dataset that renders to SQL.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func (s *Store) query(ctx context.Context, op string, ds sqlBuilder) (*sql.Rows, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, &db.Error{Op: op, Err: fmt.Errorf("build query: %w", err)}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: op, Err: err}
	}
	return rows, nil
}

func (s *Store) exec(ctx context.Context, op string, ds sqlBuilder) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, &db.Error{Op: op, Err: fmt.Errorf("build query: %w", err)}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &db.Error{Op: op, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &db.Error{Op: op, Err: err}
	}
	return n, nil
}

func (s *Store) from() *goqu.SelectDataset {
	return s.q.From(table).Prepared(true)
}
