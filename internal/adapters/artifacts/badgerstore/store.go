package badgerstore

import (
	"context"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Compile-time check
var _ model.ArtifactStore = (*Store)(nil)

// Config configures the embedded artifact store
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// InMemoryConfig returns a config for tests. Nothing touches disk.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store keeps model artifacts in an embedded Badger database
type Store struct {
	db  *badger.DB
	log *logger.Logger
}

// badgerLogger routes Badger's internal logging through zap
type badgerLogger struct {
	log *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorw(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warnw(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugw(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugw(fmt.Sprintf(format, args...))
}

// Open opens (or creates) the store
func Open(cfg Config) (*Store, error) {
	log := logger.Get().With("component", "artifact_store", "backend", "badger")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.NewValidationError("ARTIFACT_PATH", "path is required for persistent store", cfg.Path)
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.Wrapf(err, "create artifact directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger artifact store")
	}

	return &Store{db: db, log: log}, nil
}

// Put writes an artifact
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return errors.Wrapf(err, "put artifact %s", key)
	}
	return nil
}

// Get reads an artifact
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(errors.ErrNotFound, "artifact %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get artifact %s", key)
	}
	return data, nil
}

// Delete removes an artifact. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrapf(err, "delete artifact %s", key)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
