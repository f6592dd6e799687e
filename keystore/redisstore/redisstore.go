// Package redisstore is a keystore.Store backed by Redis.
//
// It serves headless device rigs and kiosk deployments where several client
// processes share one storage daemon. Values are sealed before they leave
// the process; Redis only ever sees ciphertext bound to the item name.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/lockr/internal/seal"
	"github.com/MrEthical07/lockr/keystore"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "lockr:ks"

// Config configures a Store.
type Config struct {
	Prefix string
	// SealKey must be seal.KeySize bytes.
	SealKey []byte
	// Gate is consulted for authentication-required reads. Nil allows them.
	Gate func(ctx context.Context) bool
}

// Store implements keystore.Store.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	key    []byte
	gate   func(ctx context.Context) bool
}

// New returns a Store using rdb.
func New(rdb redis.UniversalClient, cfg Config) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("redisstore: redis client required")
	}
	if len(cfg.SealKey) != seal.KeySize {
		return nil, seal.ErrKeySize
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	key := make([]byte, len(cfg.SealKey))
	copy(key, cfg.SealKey)

	return &Store{rdb: rdb, prefix: prefix, key: key, gate: cfg.Gate}, nil
}

func (s *Store) redisKey(name string) string {
	return s.prefix + ":" + name
}

// Get returns an item or keystore.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string, opts keystore.Options) (string, error) {
	name := keystore.ItemName(key, opts)
	box, err := s.rdb.Get(ctx, s.redisKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", keystore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: get: %w", err)
	}

	if opts.RequireAuthentication && s.gate != nil && !s.gate(ctx) {
		return "", keystore.ErrAuthenticationRequired
	}

	plain, err := seal.Open(s.key, box, []byte(name))
	if err != nil {
		return "", fmt.Errorf("redisstore: open %s: %w", name, err)
	}
	return string(plain), nil
}

// Set upserts an item without expiry.
func (s *Store) Set(ctx context.Context, key, value string, opts keystore.Options) error {
	name := keystore.ItemName(key, opts)
	box, err := seal.Seal(s.key, []byte(value), []byte(name))
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.redisKey(name), box, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

// Delete removes an item. Missing items are not an error.
func (s *Store) Delete(ctx context.Context, key string, opts keystore.Options) error {
	if err := s.rdb.Del(ctx, s.redisKey(keystore.ItemName(key, opts))).Err(); err != nil {
		return fmt.Errorf("redisstore: delete: %w", err)
	}
	return nil
}
