package secret

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/lockr/keystore"
)

const (
	// DefaultKey names the stored secret.
	DefaultKey = "lockr_master_password_v1"
	// DefaultService groups the secret apart from device identity.
	DefaultService = "lockr.master"
)

// Config names the stored item and the challenge text.
type Config struct {
	Key     string
	Service string
	Prompt  Prompt
	Logger  *slog.Logger
}

// DefaultConfig returns the production item names and prompt.
func DefaultConfig() Config {
	return Config{
		Key:     DefaultKey,
		Service: DefaultService,
		Prompt: Prompt{
			Message:     "Unlock your vault",
			CancelLabel: "Enter manually",
		},
	}
}

// Store reads and writes the vault unlock secret.
type Store struct {
	cfg   Config
	items keystore.Store
	auth  Authenticator
	log   *slog.Logger
}

// NewStore returns a Store over items, challenging through auth.
func NewStore(items keystore.Store, auth Authenticator, cfg Config) (*Store, error) {
	if items == nil {
		return nil, errors.New("secret: key store required")
	}
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.Service == "" {
		cfg.Service = def.Service
	}
	if cfg.Prompt.Message == "" {
		cfg.Prompt = def.Prompt
	}
	if auth == nil {
		auth = NoHardware{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{cfg: cfg, items: items, auth: auth, log: log}, nil
}

func (s *Store) options(requireAuth bool) keystore.Options {
	return keystore.Options{Service: s.cfg.Service, RequireAuthentication: requireAuth}
}

// Save writes the secret unconditionally.
func (s *Store) Save(ctx context.Context, value string) error {
	return s.items.Set(ctx, s.cfg.Key, value, s.options(false))
}

// Challenge presents p without reading the secret. It reports false when no
// hardware is enrolled or the user declines.
func (s *Store) Challenge(ctx context.Context, p Prompt) bool {
	if !Available(ctx, s.auth) {
		return false
	}
	passed, err := s.auth.Authenticate(ctx, p)
	if err != nil {
		s.log.DebugContext(ctx, "unlock challenge failed", "error", err)
		return false
	}
	return passed
}

// Read returns the secret after authenticating the user. ok is false when
// the secret is missing, the challenge was declined, or storage failed.
func (s *Store) Read(ctx context.Context) (value string, ok bool) {
	if Available(ctx, s.auth) {
		passed, err := s.auth.Authenticate(ctx, s.cfg.Prompt)
		if err != nil {
			s.log.DebugContext(ctx, "vault secret challenge failed", "error", err)
			return "", false
		}
		if !passed {
			return "", false
		}
	}

	v, err := s.items.Get(ctx, s.cfg.Key, s.options(true))
	if err != nil {
		if !errors.Is(err, keystore.ErrNotFound) {
			s.log.DebugContext(ctx, "vault secret read failed", "error", err)
		}
		return "", false
	}
	return v, v != ""
}

// Exists reports whether a secret is stored, without prompting.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	v, err := s.items.Get(ctx, s.cfg.Key, s.options(false))
	if errors.Is(err, keystore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v != "", nil
}

// Clear deletes the secret. Only explicit user action calls this.
func (s *Store) Clear(ctx context.Context) error {
	return s.items.Delete(ctx, s.cfg.Key, s.options(false))
}
