package lockr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/MrEthical07/lockr/api"
	"github.com/MrEthical07/lockr/internal/audit"
	"github.com/MrEthical07/lockr/keystore"
	"github.com/MrEthical07/lockr/secret"
	"github.com/MrEthical07/lockr/transport"
)

// Builder assembles a Controller. A Builder is single-use.
type Builder struct {
	config Config

	keys      keystore.Store
	auth      secret.Authenticator
	remote    Remote
	base      http.RoundTripper
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration. Build validates it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKeyStore sets platform secure storage. Defaults to an in-memory store,
// which forgets the device on exit.
func (b *Builder) WithKeyStore(s keystore.Store) *Builder {
	b.keys = s
	return b
}

// WithAuthenticator sets the biometric/PIN capability. Defaults to
// secret.NoHardware.
func (b *Builder) WithAuthenticator(a secret.Authenticator) *Builder {
	b.auth = a
	return b
}

// WithRemote replaces the HTTP API client used for auth calls.
func (b *Builder) WithRemote(r Remote) *Builder {
	b.remote = r
	return b
}

// WithHTTPTransport sets the round tripper beneath the session transport.
func (b *Builder) WithHTTPTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithAuditSink sets where audit events go. It only takes effect when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger shared by the controller, transport and secret
// store. Defaults to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles in-process metric counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires session, transport, storage
// and controller together. The returned Controller is in Bootstrapping.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := b.logger
	if log == nil {
		log = slog.Default()
	}
	keys := b.keys
	if keys == nil {
		keys = keystore.NewMemory()
	}

	secrets, err := secret.NewStore(keys, b.auth, secret.Config{
		Key:     cfg.Storage.SecretKey,
		Service: cfg.Storage.SecretService,
		Prompt: secret.Prompt{
			Message:               cfg.Secret.PromptText,
			CancelLabel:           cfg.Secret.CancelLabel,
			DisableDeviceFallback: !cfg.Secret.PINFallback,
		},
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)
	session := newSession()
	devices := newDeviceIdentity(keys, cfg.Storage)

	base := b.base
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	refresher, err := api.NewRefresher(&http.Client{
		Transport: base,
		Jar:       jar,
		Timeout:   cfg.Transport.RefreshTimeout,
	}, cfg.BaseURL, cfg.APIPrefix)
	if err != nil {
		return nil, err
	}

	tr, err := transport.New(base, session, refresher, transportConfig(cfg),
		transport.WithSecretReader(secrets),
		transport.WithFallbackToken(devices.legacyToken),
		transport.WithObserver(refreshObserver{m: metrics}),
		transport.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	httpc := &http.Client{Transport: tr, Jar: jar, Timeout: cfg.Transport.Timeout}

	client, err := api.NewClient(httpc, cfg.BaseURL, cfg.APIPrefix)
	if err != nil {
		return nil, err
	}
	var remote Remote = client
	if b.remote != nil {
		remote = b.remote
	}

	var dispatcher *audit.Dispatcher
	if cfg.Audit.Enabled {
		dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	c := &Controller{
		config:  cfg,
		remote:  remote,
		vault:   client,
		httpc:   httpc,
		session: session,
		secrets: secrets,
		devices: devices,
		metrics: metrics,
		audit:   dispatcher,
		log:     log,
		state:   StateBootstrapping,
	}
	session.onExpired = c.sessionExpired

	b.built = true
	return c, nil
}

// transportConfig resolves route paths against the base URL's own path.
func transportConfig(cfg Config) transport.Config {
	basePath := ""
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		basePath = u.Path
	}
	route := func(r string) string { return api.JoinPath(basePath, cfg.APIPrefix, r) }

	return transport.Config{
		VaultPathPrefix: route(api.RouteVault),
		SecretHeader:    cfg.Transport.SecretHeader,
		RequestIDHeader: cfg.Transport.RequestIDHeader,
		SkipRefreshPaths: []string{
			route(api.RouteLogin),
			route(api.RouteRegister),
			route(api.RouteMFAVerify),
			route(api.RouteRefresh),
		},
		RefreshTimeout: cfg.Transport.RefreshTimeout,
	}
}
