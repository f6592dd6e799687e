package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/lockr/internal/seal"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv   *httptest.Server
	mr    *miniredis.Miniredis
	clock *clock
	hc    *http.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = PasswordParams{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1}
	cfg.VaultKDF = seal.KDFParams{Time: 1, MemoryKB: 8 * 1024, Parallelism: 1}
	cfg.MaxAttempts = 3
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	cfg.Now = clk.Now

	s, err := New(rdb, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &testEnv{srv: srv, mr: mr, clock: clk, hc: &http.Client{Jar: jar}}
}

func (e *testEnv) do(t *testing.T, method, path string, headers map[string]string, in, out any) int {
	t.Helper()
	var body io.Reader
	if in != nil {
		b, _ := json.Marshal(in)
		body = bytes.NewReader(b)
	}
	req, _ := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.hc.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func vaultHeaders(token, master string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token, "X-Master-Password": master}
}

// enroll registers and completes MFA, returning user id, TOTP secret and
// access token.
func (e *testEnv) enroll(t *testing.T, email string) (string, string, string) {
	t.Helper()
	var reg registerResponse
	if code := e.do(t, http.MethodPost, "/api/auth/register", nil, credentialsRequest{Email: email, Password: "hunter2hunter2"}, &reg); code != http.StatusCreated {
		t.Fatalf("register status %d", code)
	}
	if !strings.HasPrefix(reg.QRCode, "data:image/png;base64,") || !strings.HasPrefix(reg.OTPAuthURL, "otpauth://totp/") {
		t.Fatalf("unexpected enrolment %+v", reg)
	}

	var login loginResponse
	if code := e.do(t, http.MethodPost, "/api/auth/login", nil, credentialsRequest{Email: email, Password: "hunter2hunter2"}, &login); code != http.StatusOK {
		t.Fatalf("login status %d", code)
	}
	if !login.MFARequired || login.UserID != reg.UserID {
		t.Fatalf("unexpected login %+v", login)
	}

	code, _ := TOTPCode(reg.Secret, e.clock.Now())
	var tok tokenResponse
	if status := e.do(t, http.MethodPost, "/api/auth/mfa/verify", nil, mfaRequest{UserID: reg.UserID, Token: code}, &tok); status != http.StatusOK || tok.Token == "" {
		t.Fatalf("mfa status %d token %q", status, tok.Token)
	}
	return reg.UserID, reg.Secret, tok.Token
}

func TestRegisterLoginMFAAndProfile(t *testing.T) {
	e := newTestEnv(t)
	userID, _, token := e.enroll(t, "Alice@Example.com")

	var me struct {
		User profile `json:"user"`
	}
	if code := e.do(t, http.MethodGet, "/api/auth/me", bearer(token), nil, &me); code != http.StatusOK {
		t.Fatalf("me status %d", code)
	}
	if me.User.ID != userID || me.User.Email != "alice@example.com" || !me.User.MFAEnabled {
		t.Fatalf("unexpected profile %+v", me.User)
	}
	if me.User.LastLoginAt == "" {
		t.Fatal("expected last login timestamp")
	}
}

func TestRegisterRejectsDuplicateAndInvalid(t *testing.T) {
	e := newTestEnv(t)
	e.enroll(t, "bob@example.com")

	if code := e.do(t, http.MethodPost, "/api/auth/register", nil, credentialsRequest{Email: "BOB@example.com", Password: "hunter2hunter2"}, nil); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	var msg messageResponse
	if code := e.do(t, http.MethodPost, "/api/auth/register", nil, credentialsRequest{Email: "not-an-email", Password: "hunter2hunter2"}, &msg); code != http.StatusBadRequest || msg.Message == "" {
		t.Fatalf("expected 400 with message, got %d %+v", code, msg)
	}
}

func TestLoginFailuresAreRateLimited(t *testing.T) {
	e := newTestEnv(t)
	e.enroll(t, "carol@example.com")
	bad := credentialsRequest{Email: "carol@example.com", Password: "wrong-password"}

	for i := 0; i < 3; i++ {
		if code := e.do(t, http.MethodPost, "/api/auth/login", nil, bad, nil); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, code)
		}
	}
	good := credentialsRequest{Email: "carol@example.com", Password: "hunter2hunter2"}
	if code := e.do(t, http.MethodPost, "/api/auth/login", nil, good, nil); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := e.do(t, http.MethodPost, "/api/auth/login", nil, credentialsRequest{Email: "nobody@example.com", Password: "x"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("unknown user must look like a bad password, got %d", code)
	}
}

func TestTOTPReplayAndBackupCodes(t *testing.T) {
	e := newTestEnv(t)
	userID, secret, token := e.enroll(t, "dave@example.com")

	code, _ := TOTPCode(secret, e.clock.Now())
	if status := e.do(t, http.MethodPost, "/api/auth/mfa/verify", nil, mfaRequest{UserID: userID, Token: code}, nil); status != http.StatusUnauthorized {
		t.Fatalf("replayed code must be rejected, got %d", status)
	}

	var rotated struct {
		Codes []string `json:"codes"`
	}
	if status := e.do(t, http.MethodPost, "/api/auth/mfa/backup/rotate", bearer(token), nil, &rotated); status != http.StatusOK || len(rotated.Codes) != 10 {
		t.Fatalf("rotate status %d codes %v", status, rotated.Codes)
	}

	typed := strings.ToLower(strings.ReplaceAll(rotated.Codes[0], "-", " "))
	if status := e.do(t, http.MethodPost, "/api/auth/mfa/verify", nil, mfaRequest{UserID: userID, BackupCode: typed}, nil); status != http.StatusOK {
		t.Fatalf("backup code rejected: %d", status)
	}
	if status := e.do(t, http.MethodPost, "/api/auth/mfa/verify", nil, mfaRequest{UserID: userID, BackupCode: rotated.Codes[0]}, nil); status != http.StatusUnauthorized {
		t.Fatalf("backup code must be single use, got %d", status)
	}
	if status := e.do(t, http.MethodPost, "/api/auth/mfa/verify", nil, mfaRequest{UserID: userID, Token: "123456", BackupCode: rotated.Codes[1]}, nil); status != http.StatusBadRequest {
		t.Fatalf("both factors must be rejected, got %d", status)
	}

	var me struct {
		User profile `json:"user"`
	}
	e.do(t, http.MethodGet, "/api/auth/me", bearer(token), nil, &me)
	if me.User.BackupCodesRemaining != 9 || me.User.LastBackupRotation == "" {
		t.Fatalf("unexpected profile %+v", me.User)
	}
}

func TestRefreshRotatesCookieAndExpiredTokenIsRejected(t *testing.T) {
	e := newTestEnv(t)
	_, _, token := e.enroll(t, "erin@example.com")

	e.clock.Advance(16 * time.Minute)
	if code := e.do(t, http.MethodGet, "/api/auth/me", bearer(token), nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected expired token to be rejected, got %d", code)
	}

	u, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/auth/token/refresh", nil)
	old := e.hc.Jar.Cookies(u.URL)
	if len(old) != 1 {
		t.Fatalf("expected refresh cookie, got %v", old)
	}

	var tok tokenResponse
	if code := e.do(t, http.MethodPost, "/api/auth/token/refresh", nil, nil, &tok); code != http.StatusOK || tok.Token == "" {
		t.Fatalf("refresh status %d", code)
	}
	if code := e.do(t, http.MethodGet, "/api/auth/me", bearer(tok.Token), nil, nil); code != http.StatusOK {
		t.Fatalf("refreshed token rejected: %d", code)
	}

	stale := &http.Client{}
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/api/auth/token/refresh", nil)
	req.AddCookie(old[0])
	resp, err := stale.Do(req)
	if err != nil {
		t.Fatalf("stale refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("rotated cookie must be single use, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	e := newTestEnv(t)
	_, _, token := e.enroll(t, "frank@example.com")

	if code := e.do(t, http.MethodPost, "/api/auth/logout", bearer(token), nil, nil); code != http.StatusOK {
		t.Fatalf("logout status %d", code)
	}
	if code := e.do(t, http.MethodGet, "/api/auth/me", bearer(token), nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: %d", code)
	}
	if code := e.do(t, http.MethodPost, "/api/auth/token/refresh", nil, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout accepted: %d", code)
	}
	if code := e.do(t, http.MethodPost, "/api/auth/logout", nil, nil, nil); code != http.StatusOK {
		t.Fatalf("logout must always succeed, got %d", code)
	}
}

func TestVaultItemsAreSealedUnderMasterPassword(t *testing.T) {
	e := newTestEnv(t)
	userID, _, token := e.enroll(t, "gina@example.com")
	h := vaultHeaders(token, "correct horse battery")

	if code := e.do(t, http.MethodGet, "/api/vault", bearer(token), nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without master password, got %d", code)
	}

	var added map[string]string
	item := vaultItem{SiteName: "example.com", Username: "gina", Password: "s3cr3t-pw"}
	if code := e.do(t, http.MethodPost, "/api/vault", h, item, &added); code != http.StatusCreated || added["itemId"] == "" {
		t.Fatalf("add status %d %v", code, added)
	}
	id := added["itemId"]

	if raw := e.mr.HGet(vaultKey(userID), id); raw == "" || strings.Contains(raw, "s3cr3t-pw") {
		t.Fatalf("item must be stored sealed, got %q", raw)
	}

	if code := e.do(t, http.MethodGet, "/api/vault", vaultHeaders(token, "wrong horse"), nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong master password, got %d", code)
	}

	newPw := "n3w-pw"
	if code := e.do(t, http.MethodPut, "/api/vault/"+id, h, vaultItemUpdate{Password: &newPw}, nil); code != http.StatusOK {
		t.Fatalf("update status %d", code)
	}

	var list []listedItem
	if code := e.do(t, http.MethodGet, "/api/vault", h, nil, &list); code != http.StatusOK {
		t.Fatalf("list status %d", code)
	}
	if len(list) != 1 || list[0].ID != id || list[0].Password != newPw || list[0].SiteName != "example.com" {
		t.Fatalf("unexpected list %+v", list)
	}

	if code := e.do(t, http.MethodDelete, "/api/vault/"+id, h, nil, nil); code != http.StatusOK {
		t.Fatalf("delete status %d", code)
	}
	if code := e.do(t, http.MethodDelete, "/api/vault/"+id, h, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", code)
	}
}

func TestTOTPCodeRFC6238Vectors(t *testing.T) {
	// RFC 6238 appendix B SHA1 secret, truncated to six digits.
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	cases := map[int64]string{
		59:         "287082",
		1111111109: "081804",
		1234567890: "005924",
		2000000000: "279037",
	}
	for ts, want := range cases {
		got, err := TOTPCode(secret, time.Unix(ts, 0))
		if err != nil || got != want {
			t.Fatalf("T=%d: got %q, %v want %q", ts, got, err, want)
		}
	}
}

func TestVerifyTOTPSkew(t *testing.T) {
	secret, _ := newTOTPSecret()
	now := time.Unix(1_700_000_000, 0)
	prev, _ := TOTPCode(secret, now.Add(-30*time.Second))

	if ok, _, _ := verifyTOTP(secret, prev, now, 1); !ok {
		t.Fatal("previous period must be accepted with skew 1")
	}
	if ok, _, _ := verifyTOTP(secret, prev, now, 0); ok {
		t.Fatal("previous period must be rejected with skew 0")
	}
	if ok, _, _ := verifyTOTP(secret, "12a456", now, 1); ok {
		t.Fatal("non-numeric code must be rejected")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	p := PasswordParams{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1}
	enc, err := hashPassword("hunter2hunter2", p)
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", enc)
	}
	if ok, err := verifyPassword("hunter2hunter2", enc); err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	if ok, _ := verifyPassword("hunter3hunter3", enc); ok {
		t.Fatal("expected mismatch")
	}
	if _, err := verifyPassword("x", "$bcrypt$nope"); err == nil {
		t.Fatal("expected malformed hash error")
	}
}

func TestBackupCodeFormat(t *testing.T) {
	codes, err := newBackupCodes(4)
	if err != nil || len(codes) != 4 {
		t.Fatalf("newBackupCodes = %v, %v", codes, err)
	}
	for _, c := range codes {
		if len(c) != 11 || c[5] != '-' {
			t.Fatalf("unexpected code %q", c)
		}
		if backupCodeHash(c) != backupCodeHash(strings.ToLower(c)) {
			t.Fatal("hash must ignore case")
		}
	}
}
