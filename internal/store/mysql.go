package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/pkg/config"
)

// Store is the local business-records store. The sync engine reads and writes
// products, manufacturers, categories, images, the parameter store and the
// notification tables through it.
type Store struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *logrus.Entry
	cfg    *config.MySQLConfig
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WriteError wraps a failed local write. A single bad record fails the whole
// pass, so these propagate immediately.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("local write failed (%s): %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// New creates a new store over MySQL
func New(cfg *config.MySQLConfig, dsn string, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.WithField("component", "store"),
		cfg:    cfg,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Health checks database health
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.db.PingContext(ctx)
}

// Begin opens a transaction for batched writes.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// WithTx returns a store view whose writes run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	clone := *s
	clone.tx = tx
	return &clone
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}
