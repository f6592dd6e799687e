package lockr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/lockr/api"
	"github.com/MrEthical07/lockr/keystore"
	"github.com/MrEthical07/lockr/secret"
)

// expiringServer accepts one bearer token at a time and rotates it on
// refresh while refreshOK holds.
type expiringServer struct {
	mu        sync.Mutex
	valid     string
	next      string
	refreshOK bool
	refreshes atomic.Int64
	secrets   []string
}

func (s *expiringServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/mfa/verify", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		tok := s.valid
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r1", Path: "/", HttpOnly: true})
		_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
	})
	mux.HandleFunc("POST /api/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshes.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, err := r.Cookie("refresh_token"); err != nil || c.Value == "" || !s.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "refresh rejected"})
			return
		}
		s.valid = s.next
		_ = json.NewEncoder(w).Encode(map[string]string{"token": s.valid})
	})
	mux.HandleFunc("GET /api/vault", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+s.valid
		s.secrets = append(s.secrets, r.Header.Get("X-Master-Password"))
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"_id": "i1", "siteName": "example", "username": "me"}})
	})
	return mux
}

func (s *expiringServer) expire() {
	s.mu.Lock()
	s.valid = "rotated-elsewhere"
	s.mu.Unlock()
}

func activeController(t *testing.T, srv *httptest.Server) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Transport.RefreshTimeout = 2 * time.Second

	keys := keystore.NewMemory()
	c, err := New().WithConfig(cfg).WithKeyStore(keys).WithAuthenticator(secret.NoHardware{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(c.Close)

	ctx := context.Background()
	if _, err := c.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if out, err := c.SubmitMFA(ctx, "u1", "123456"); err != nil || out != MFANeedSecret {
		t.Fatalf("SubmitMFA = %v, %v", out, err)
	}
	if err := c.CompleteSecretSetup(ctx, "longenough1", "longenough1"); err != nil {
		t.Fatalf("CompleteSecretSetup: %v", err)
	}
	return c
}

func TestVaultRequestCarriesTokenAndSecret(t *testing.T) {
	es := &expiringServer{valid: "t1"}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()
	c := activeController(t, srv)

	vault, err := c.Vault()
	if err != nil {
		t.Fatalf("Vault: %v", err)
	}
	items, err := vault.ListVault(context.Background())
	if err != nil || len(items) != 1 || items[0].ID != "i1" {
		t.Fatalf("ListVault = %+v, %v", items, err)
	}
	if es.secrets[0] != "longenough1" {
		t.Fatalf("expected secret header on vault request, got %q", es.secrets[0])
	}
}

func TestSilentRefreshKeepsSessionActive(t *testing.T) {
	es := &expiringServer{valid: "t1", next: "t2", refreshOK: true}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()
	c := activeController(t, srv)
	vault, _ := c.Vault()

	es.expire()
	if _, err := vault.ListVault(context.Background()); err != nil {
		t.Fatalf("ListVault after expiry: %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("expected Active, got %s", c.State())
	}
	if c.session.AccessToken() != "t2" {
		t.Fatalf("expected rotated token, got %q", c.session.AccessToken())
	}
	if c.Metrics().Value(MetricRefreshSuccess) != 1 {
		t.Fatal("expected refresh success metric")
	}
}

func TestFailedRefreshExpiresSessionToMFA(t *testing.T) {
	es := &expiringServer{valid: "t1"}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()
	c := activeController(t, srv)
	vault, _ := c.Vault()

	es.expire()
	_, err := vault.ListVault(context.Background())
	if api.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %v", err)
	}
	if c.State() != StateAwaitingMFA || c.PendingUserID() != "u1" {
		t.Fatalf("expected AwaitingMFA for u1, got %s/%s", c.State(), c.PendingUserID())
	}
	if c.Session().Authenticated {
		t.Fatal("session must be cleared")
	}
	if _, err := c.Vault(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected vault to be closed, got %v", err)
	}
	if c.Metrics().Value(MetricSessionExpired) != 1 {
		t.Fatal("expected session expired metric")
	}
}

func TestConcurrentExpiryRefreshesOnce(t *testing.T) {
	es := &expiringServer{valid: "t1", next: "t2", refreshOK: true}
	srv := httptest.NewServer(es.handler())
	defer srv.Close()
	c := activeController(t, srv)
	vault, _ := c.Vault()
	es.expire()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := vault.ListVault(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ListVault: %v", err)
		}
	}
	if n := es.refreshes.Load(); n != 1 {
		t.Fatalf("expected one refresh call, got %d", n)
	}
}

func TestSessionInfoTracksTokenExpiry(t *testing.T) {
	s := newSession()
	s.establish("opaque", &UserProfile{ID: "u1"})
	info := s.Info()
	if !info.Authenticated || !info.ExpiresAt.IsZero() {
		t.Fatalf("opaque token must have no expiry, got %+v", info)
	}

	var fired atomic.Int64
	s.onExpired = func() { fired.Add(1) }
	s.ClearAccessToken()
	s.ClearAccessToken()
	if fired.Load() != 1 {
		t.Fatalf("expected callback once, got %d", fired.Load())
	}
	if s.User() != nil {
		t.Fatal("profile must be cleared with the token")
	}
}
