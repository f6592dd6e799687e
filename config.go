package lockr

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/lockr/api"
	"github.com/MrEthical07/lockr/internal/env"
	"github.com/MrEthical07/lockr/secret"
)

// Config configures a Controller and the transport it owns.
type Config struct {
	// BaseURL is the remote service origin, e.g. https://vault.example.com.
	BaseURL string
	// APIPrefix is prepended to every route.
	APIPrefix string

	Transport TransportConfig
	Storage   StorageConfig
	Secret    SecretConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// TransportConfig controls the HTTP layer.
type TransportConfig struct {
	// Timeout bounds every request, including its retry.
	Timeout time.Duration
	// RefreshTimeout bounds the refresh call, which runs detached from the
	// caller that triggered it.
	RefreshTimeout  time.Duration
	SecretHeader    string
	RequestIDHeader string
}

// StorageConfig names the durable items.
type StorageConfig struct {
	DeviceKey     string
	DeviceService string
	// LegacyTokenKey is only ever read as a bearer fallback and deleted on
	// logout.
	LegacyTokenKey string
	SecretKey      string
	SecretService  string
}

// SecretConfig controls the vault unlock secret.
type SecretConfig struct {
	MinLength   int
	PromptText  string
	CancelLabel string
	PINFallback bool
	// UnlockPromptText and UnlockCancelLabel are shown by Unlock, which
	// gates the app without reading the secret.
	UnlockPromptText  string
	UnlockCancelLabel string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:3000",
		APIPrefix: api.DefaultPrefix,
		Transport: TransportConfig{
			Timeout:         15 * time.Second,
			RefreshTimeout:  15 * time.Second,
			SecretHeader:    "X-Master-Password",
			RequestIDHeader: "X-Request-ID",
		},
		Storage: StorageConfig{
			DeviceKey:      "lockr_userId",
			LegacyTokenKey: "lockr_token",
			SecretKey:      secret.DefaultKey,
			SecretService:  secret.DefaultService,
		},
		Secret: SecretConfig{
			MinLength:   8,
			PromptText:  "Unlock your vault",
			CancelLabel: "Enter manually",
			PINFallback: true,

			UnlockPromptText:  "Unlock Vault",
			UnlockCancelLabel: "Use Master Password",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// LoadConfigFromEnv overlays LOCKR_* environment variables on the defaults.
func LoadConfigFromEnv() Config {
	cfg := defaultConfig()
	cfg.BaseURL = env.String("LOCKR_BASE_URL", cfg.BaseURL)
	cfg.APIPrefix = env.String("LOCKR_API_PREFIX", cfg.APIPrefix)
	cfg.Transport.Timeout = env.Duration("LOCKR_HTTP_TIMEOUT", cfg.Transport.Timeout)
	cfg.Transport.RefreshTimeout = env.Duration("LOCKR_REFRESH_TIMEOUT", cfg.Transport.RefreshTimeout)
	cfg.Secret.MinLength = env.Int("LOCKR_SECRET_MIN_LENGTH", cfg.Secret.MinLength)
	cfg.Audit.Enabled = env.Bool("LOCKR_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.BufferSize = env.Int("LOCKR_AUDIT_BUFFER", cfg.Audit.BufferSize)
	cfg.Metrics.Enabled = env.Bool("LOCKR_METRICS_ENABLED", cfg.Metrics.Enabled)
	return cfg
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("BaseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" {
		return errors.New("BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("BaseURL scheme must be http or https")
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return errors.New("APIPrefix must start with /")
	}

	if c.Transport.Timeout <= 0 {
		return errors.New("Transport Timeout must be > 0")
	}
	if c.Transport.RefreshTimeout <= 0 {
		return errors.New("Transport RefreshTimeout must be > 0")
	}
	if strings.TrimSpace(c.Transport.SecretHeader) == "" {
		return errors.New("Transport SecretHeader is required")
	}

	if c.Storage.DeviceKey == "" {
		return errors.New("Storage DeviceKey is required")
	}
	if c.Storage.SecretKey == "" {
		return errors.New("Storage SecretKey is required")
	}
	if c.Storage.DeviceKey == c.Storage.SecretKey && c.Storage.DeviceService == c.Storage.SecretService {
		return errors.New("device identity and vault secret must use distinct storage items")
	}

	if c.Secret.MinLength < 8 {
		return errors.New("Secret MinLength must be >= 8")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}
