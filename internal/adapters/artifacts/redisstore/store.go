package redisstore

import (
	"context"

	"pacelab/internal/adapters/redis"
	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
)

// Compile-time check
var _ model.ArtifactStore = (*Store)(nil)

const keyPrefix = "pacelab:artifact:"

// Store keeps model artifacts in Redis so several processes can share them.
// Keys never expire.
type Store struct {
	client *redis.Client
}

// New creates a Redis-backed artifact store
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Put writes an artifact
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.SetBytes(ctx, keyPrefix+key, data, 0); err != nil {
		return errors.Wrapf(err, "put artifact %s", key)
	}
	return nil
}

// Get reads an artifact
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetBytes(ctx, keyPrefix+key)
	if err != nil {
		return nil, errors.Wrapf(err, "get artifact %s", key)
	}
	return data, nil
}

// Delete removes an artifact
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, keyPrefix+key); err != nil {
		return errors.Wrapf(err, "delete artifact %s", key)
	}
	return nil
}
