// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The document is kept as one BYTEA row keyed by a fixed name, so a Save is
// a single upsert statement and inherits PostgreSQL's statement atomicity.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/opweb/storage"
)

// DefaultDocumentName is the row key used when none is configured.
const DefaultDocumentName = "opweb"

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	name string
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
// An empty name selects DefaultDocumentName.
func NewRepository(pool *pgxpool.Pool, name string) *Store {
	if name == "" {
		name = DefaultDocumentName
	}
	return &Store{pool: pool, name: name}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn, name string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool, name), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Load() ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT data FROM documents WHERE name = $1`, s.name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", s.name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Save(data []byte) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO documents (name, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (name)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		s.name, data)
	return err
}
