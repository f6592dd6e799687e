package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "session-refresh"

// ErrRefreshFailed wraps the refresher's error when a refresh does not succeed.
var ErrRefreshFailed = errors.New("transport: session refresh failed")

// TokenSource is the in-memory session the transport reads and downgrades.
type TokenSource interface {
	AccessToken() string
	SetAccessToken(token string)
	ClearAccessToken()
}

// SecretReader supplies the vault secret for vault-scoped requests.
type SecretReader interface {
	Read(ctx context.Context) (string, bool)
}

// Refresher performs the cookie-based refresh. A non-empty token is handed
// back to the session.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) (string, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// Observer receives refresh lifecycle events.
type Observer interface {
	RefreshStarted()
	RefreshFinished(err error, elapsed time.Duration)
	RefreshJoined()
}

type noopObserver struct{}

func (noopObserver) RefreshStarted()                       {}
func (noopObserver) RefreshFinished(error, time.Duration) {}
func (noopObserver) RefreshJoined()                        {}

// Config controls request augmentation and refresh.
type Config struct {
	// VaultPathPrefix selects requests that carry the secret header.
	VaultPathPrefix string
	SecretHeader    string
	RequestIDHeader string
	// SkipRefreshPaths never trigger a refresh on 401 (credential endpoints
	// and the refresh endpoint itself).
	SkipRefreshPaths []string
	RefreshTimeout   time.Duration
}

// DefaultConfig matches the default /api route layout.
func DefaultConfig() Config {
	return Config{
		VaultPathPrefix: "/api/vault",
		SecretHeader:    "X-Master-Password",
		RequestIDHeader: "X-Request-ID",
		SkipRefreshPaths: []string{
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/mfa/verify",
			"/api/auth/token/refresh",
		},
		RefreshTimeout: 15 * time.Second,
	}
}

// Option customizes a Transport.
type Option func(*Transport)

// WithSecretReader sets the vault secret source.
func WithSecretReader(r SecretReader) Option {
	return func(t *Transport) { t.secrets = r }
}

// WithFallbackToken sets the durable token lookup used until the session is
// first hydrated. Once the session has held a token, or any refresh has run,
// the fallback is ignored.
func WithFallbackToken(fn func(ctx context.Context) string) Option {
	return func(t *Transport) { t.fallback = fn }
}

// WithObserver sets the refresh observer.
func WithObserver(o Observer) Option {
	return func(t *Transport) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// Transport is an http.RoundTripper bound to one session.
type Transport struct {
	base      http.RoundTripper
	tokens    TokenSource
	refresher Refresher
	secrets   SecretReader
	fallback  func(ctx context.Context) string
	// hydrated latches once the session has held a token or a refresh has
	// run; the fallback token is never sent after that.
	hydrated  atomic.Bool
	observer  Observer
	log       *slog.Logger
	cfg       Config

	group   singleflight.Group
	mu      sync.Mutex
	gen     uint64
	lastErr error
}

// New wraps base. A nil base uses http.DefaultTransport.
func New(base http.RoundTripper, tokens TokenSource, refresher Refresher, cfg Config, opts ...Option) (*Transport, error) {
	if tokens == nil {
		return nil, errors.New("transport: token source required")
	}
	if refresher == nil {
		return nil, errors.New("transport: refresher required")
	}
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = DefaultConfig().SecretHeader
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultConfig().RefreshTimeout
	}

	t := &Transport{
		base:      base,
		tokens:    tokens,
		refresher: refresher,
		observer:  noopObserver{},
		log:       slog.Default(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

type retriedKey struct{}

// MarkRetried flags requests made with ctx as already retried; a 401 on them
// propagates without a refresh.
func MarkRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	seen := t.generation()

	out := t.prepare(req)
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isRetried(ctx) || t.skipRefresh(req.URL.Path) {
		return resp, nil
	}

	body, replayable := replayBody(req)
	if !replayable {
		return resp, nil
	}

	if err := t.refresh(ctx, seen); err != nil {
		if body != nil {
			body.Close()
		}
		return resp, nil
	}

	drainAndClose(resp.Body)

	retry := out.Clone(ctx)
	retry.Body = body
	if tok := t.bearer(ctx); tok != "" {
		retry.Header.Set("Authorization", "Bearer "+tok)
	} else {
		retry.Header.Del("Authorization")
	}
	return t.base.RoundTrip(retry)
}

func (t *Transport) prepare(req *http.Request) *http.Request {
	ctx := req.Context()
	out := req.Clone(ctx)

	if tok := t.bearer(ctx); tok != "" {
		out.Header.Set("Authorization", "Bearer "+tok)
	}

	if t.secrets != nil && t.isVaultPath(out.URL.Path) && out.Header.Get(t.cfg.SecretHeader) == "" {
		if s, ok := t.secrets.Read(ctx); ok {
			out.Header.Set(t.cfg.SecretHeader, s)
		}
	}

	if h := t.cfg.RequestIDHeader; h != "" && out.Header.Get(h) == "" {
		out.Header.Set(h, uuid.NewString())
	}
	return out
}

func (t *Transport) bearer(ctx context.Context) string {
	if tok := t.tokens.AccessToken(); tok != "" {
		t.hydrated.Store(true)
		return tok
	}
	if t.fallback == nil || t.hydrated.Load() {
		return ""
	}
	return t.fallback(ctx)
}

func (t *Transport) isVaultPath(path string) bool {
	p := strings.TrimSuffix(t.cfg.VaultPathPrefix, "/")
	if p == "" {
		return false
	}
	return path == p || strings.HasPrefix(path, p+"/")
}

func (t *Transport) skipRefresh(path string) bool {
	for _, p := range t.cfg.SkipRefreshPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (t *Transport) generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// refresh joins or starts the single in-flight refresh. seen is the
// generation observed before the failing request was sent; if a refresh has
// settled since, its outcome is reused.
func (t *Transport) refresh(ctx context.Context, seen uint64) error {
	t.mu.Lock()
	if t.gen > seen {
		err := t.lastErr
		t.mu.Unlock()
		t.observer.RefreshJoined()
		return err
	}
	t.mu.Unlock()

	led := false
	ch := t.group.DoChan(refreshKey, func() (any, error) {
		led = true
		return nil, t.runRefresh(ctx, seen)
	})

	select {
	case res := <-ch:
		if !led {
			t.observer.RefreshJoined()
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) runRefresh(ctx context.Context, seen uint64) error {
	t.mu.Lock()
	if t.gen > seen {
		err := t.lastErr
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.RefreshTimeout)
	defer cancel()

	t.observer.RefreshStarted()
	start := time.Now()

	token, err := t.callRefresher(rctx)
	t.hydrated.Store(true)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		t.tokens.ClearAccessToken()
		t.log.WarnContext(ctx, "session refresh failed", "error", err)
	} else if token != "" {
		t.tokens.SetAccessToken(token)
	}

	t.mu.Lock()
	t.gen++
	t.lastErr = err
	t.mu.Unlock()

	t.observer.RefreshFinished(err, time.Since(start))
	return err
}

func (t *Transport) callRefresher(ctx context.Context) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresher panic: %v", r)
		}
	}()
	return t.refresher.Refresh(ctx)
}

func replayBody(req *http.Request) (io.ReadCloser, bool) {
	if req.Body == nil || req.Body == http.NoBody {
		return http.NoBody, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	return body, true
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
