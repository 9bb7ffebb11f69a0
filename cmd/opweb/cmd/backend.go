package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/opweb/internal/config"
	"github.com/jmcleod/opweb/storage"
	bboltstorage "github.com/jmcleod/opweb/storage/bbolt"
	"github.com/jmcleod/opweb/storage/file"
	"github.com/jmcleod/opweb/storage/memory"
	"github.com/jmcleod/opweb/storage/postgres"
)

// openRepository returns the configured backing repository and a function
// releasing it.
func openRepository(ctx context.Context, cfg config.Config) (storage.Repository, func(), error) {
	switch cfg.Backend {
	case config.BackendFile:
		return file.NewRepository(cfg.DataFile), func() {}, nil
	case config.BackendBbolt:
		if err := os.MkdirAll(filepath.Dir(cfg.DataFile), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.DataFile, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bbolt storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	case config.BackendMemory:
		return memory.NewRepository(), func() {}, nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.DatabaseURL, postgres.DefaultDocumentName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// readOnlyLockTimeout bounds how long a read-only open waits for the lock a
// running server holds on a bbolt file.
var readOnlyLockTimeout = time.Second

// openReadOnlyRepository opens the configured backend for inspection. A
// missing data file yields storage.ErrNotFound and is not created.
func openReadOnlyRepository(ctx context.Context, cfg config.Config) (storage.Repository, func(), error) {
	switch cfg.Backend {
	case config.BackendFile, config.BackendBbolt:
		if _, err := os.Stat(cfg.DataFile); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil, fmt.Errorf("%s: %w", cfg.DataFile, storage.ErrNotFound)
			}
			return nil, nil, fmt.Errorf("failed to stat data file: %w", err)
		}
	}
	if cfg.Backend != config.BackendBbolt {
		return openRepository(ctx, cfg)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(cfg.DataFile, &bbolt.Options{
		ReadOnly: true,
		Timeout:  readOnlyLockTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bbolt storage: %w", err)
	}
	return repo, func() { repo.Close() }, nil
}
