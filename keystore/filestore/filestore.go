// Package filestore is a keystore.Store backed by one sealed file, used by the
// desktop and CLI builds where no platform keychain is available.
//
// The whole item map is sealed with XChaCha20-Poly1305 under a key stretched
// from the device passphrase with argon2id. Entering the passphrase is the
// authentication step; authentication-required reads additionally consult
// Gate when one is configured.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrEthical07/lockr/internal/seal"
	"github.com/MrEthical07/lockr/keystore"
)

const (
	formatVersion = 1
	fileAAD       = "lockr-filestore-v1"
)

// ErrWrongPassphrase is returned by Open when the file cannot be unsealed.
var ErrWrongPassphrase = errors.New("filestore: wrong passphrase or corrupt file")

type fileEnvelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Box     []byte `json:"box"`
}

// Config controls where and how the file is sealed.
type Config struct {
	Path       string
	Passphrase []byte
	KDF        seal.KDFParams
	// Gate is consulted for authentication-required reads. Nil allows them.
	Gate func(ctx context.Context) bool
}

// Store implements keystore.Store.
type Store struct {
	path  string
	key   []byte
	salt  []byte
	gate  func(ctx context.Context) bool
	mu    sync.Mutex
	items map[string]string
}

// Open loads the sealed file at cfg.Path, creating an empty store when the
// file does not exist yet.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("filestore: path required")
	}
	if len(cfg.Passphrase) == 0 {
		return nil, errors.New("filestore: passphrase required")
	}

	s := &Store{path: cfg.Path, gate: cfg.Gate, items: map[string]string{}}

	raw, err := os.ReadFile(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		salt, err := seal.NewSalt()
		if err != nil {
			return nil, err
		}
		s.salt = salt
		s.key = seal.DeriveKey(cfg.Passphrase, salt, cfg.KDF)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("filestore: read %s: %w", cfg.Path, err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Version != formatVersion {
		return nil, ErrWrongPassphrase
	}
	s.salt = env.Salt
	s.key = seal.DeriveKey(cfg.Passphrase, env.Salt, cfg.KDF)

	plain, err := seal.Open(s.key, env.Box, []byte(fileAAD))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	if err := json.Unmarshal(plain, &s.items); err != nil {
		return nil, ErrWrongPassphrase
	}
	return s, nil
}

// Get returns an item or keystore.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string, opts keystore.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	v, ok := s.items[keystore.ItemName(key, opts)]
	s.mu.Unlock()
	if !ok {
		return "", keystore.ErrNotFound
	}
	if opts.RequireAuthentication && s.gate != nil && !s.gate(ctx) {
		return "", keystore.ErrAuthenticationRequired
	}
	return v, nil
}

// Set upserts an item and rewrites the file.
func (s *Store) Set(ctx context.Context, key, value string, opts keystore.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := keystore.ItemName(key, opts)
	prev, had := s.items[name]
	s.items[name] = value
	if err := s.flushLocked(); err != nil {
		if had {
			s.items[name] = prev
		} else {
			delete(s.items, name)
		}
		return err
	}
	return nil
}

// Delete removes an item and rewrites the file.
func (s *Store) Delete(ctx context.Context, key string, opts keystore.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := keystore.ItemName(key, opts)
	prev, had := s.items[name]
	if !had {
		return nil
	}
	delete(s.items, name)
	if err := s.flushLocked(); err != nil {
		s.items[name] = prev
		return err
	}
	return nil
}

func (s *Store) flushLocked() error {
	plain, err := json.Marshal(s.items)
	if err != nil {
		return err
	}
	box, err := seal.Seal(s.key, plain, []byte(fileAAD))
	if err != nil {
		return err
	}
	data, err := json.Marshal(fileEnvelope{Version: formatVersion, Salt: s.salt, Box: box})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("filestore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".lockr-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
