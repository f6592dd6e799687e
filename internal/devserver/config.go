package devserver

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/lockr/internal/seal"
)

// PasswordParams tunes argon2id account password hashing.
type PasswordParams struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
}

// Config configures a Server.
type Config struct {
	Prefix     string
	Issuer     string
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	CookieName   string
	SecureCookie bool

	TOTPIssuer      string
	TOTPSkew        int
	BackupCodeCount int

	MaxAttempts   int
	AttemptWindow time.Duration

	Password PasswordParams
	VaultKDF seal.KDFParams

	// MasterPasswordHeader carries the vault secret on vault routes.
	MasterPasswordHeader string

	Now    func() time.Time
	Logger *slog.Logger
}

// DefaultConfig returns development defaults. SigningKey must still be set.
func DefaultConfig() Config {
	return Config{
		Prefix:               "/api",
		Issuer:               "lockr-devserver",
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           7 * 24 * time.Hour,
		CookieName:           "refresh_token",
		TOTPIssuer:           "Lockr",
		TOTPSkew:             1,
		BackupCodeCount:      10,
		MaxAttempts:          5,
		AttemptWindow:        15 * time.Minute,
		Password:             PasswordParams{MemoryKB: 64 * 1024, Time: 3, Parallelism: 2},
		VaultKDF:             seal.DefaultKDFParams,
		MasterPasswordHeader: "X-Master-Password",
	}
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	if len(c.SigningKey) < 32 {
		return errors.New("devserver: SigningKey must be at least 32 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("devserver: token TTLs must be > 0")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("devserver: RefreshTTL must exceed AccessTTL")
	}
	if c.CookieName == "" {
		return errors.New("devserver: CookieName is required")
	}
	if c.TOTPSkew < 0 || c.TOTPSkew > 3 {
		return errors.New("devserver: TOTPSkew must be within 0..3")
	}
	if c.BackupCodeCount <= 0 {
		return errors.New("devserver: BackupCodeCount must be > 0")
	}
	if c.MaxAttempts <= 0 || c.AttemptWindow <= 0 {
		return errors.New("devserver: attempt limits must be > 0")
	}
	if c.Password.MemoryKB < 8*1024 || c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("devserver: password params below minimum")
	}
	if c.MasterPasswordHeader == "" {
		return errors.New("devserver: MasterPasswordHeader is required")
	}
	return nil
}
