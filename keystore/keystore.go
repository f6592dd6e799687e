package keystore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no item exists under the key.
	ErrNotFound = errors.New("keystore: item not found")
	// ErrAuthenticationRequired is returned when an authentication-gated read
	// was declined or could not be performed.
	ErrAuthenticationRequired = errors.New("keystore: authentication required")
)

// Options scope a single storage call.
type Options struct {
	// Service groups items (iOS keychainService, Android alias prefix).
	Service string
	// RequireAuthentication asks the platform to authenticate the user
	// before the item is released.
	RequireAuthentication bool
}

// Store is platform secure storage.
type Store interface {
	Get(ctx context.Context, key string, opts Options) (string, error)
	Set(ctx context.Context, key, value string, opts Options) error
	Delete(ctx context.Context, key string, opts Options) error
}

// ItemName joins service and key the way every backend addresses items.
func ItemName(key string, opts Options) string {
	if opts.Service == "" {
		return key
	}
	return opts.Service + "/" + key
}
