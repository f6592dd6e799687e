package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.Client(), srv.URL, DefaultPrefix)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestJoinPath(t *testing.T) {
	cases := []struct {
		parts []string
		want  string
	}{
		{[]string{"", "/api", "/auth/login"}, "/api/auth/login"},
		{[]string{"/base/", "api/", "vault"}, "/base/api/vault"},
		{[]string{"", ""}, "/"},
	}
	for _, tc := range cases {
		if got := JoinPath(tc.parts...); got != tc.want {
			t.Fatalf("JoinPath(%q) = %q, want %q", tc.parts, got, tc.want)
		}
	}
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "not a url", "/relative"} {
		if _, err := NewClient(nil, base, DefaultPrefix); !errors.Is(err, ErrBaseURL) {
			t.Fatalf("%q: expected ErrBaseURL, got %v", base, err)
		}
	}
}

func TestLoginPostsCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.c" || body["password"] != "pw" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"mfaRequired":true,"userId":"u1"}`)
	}))

	res, err := c.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.MFARequired || res.UserID != "u1" {
		t.Fatalf("unexpected login response %+v", res)
	}
}

func TestRegisterNormalizesAliases(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Enrollment
	}{
		{
			name: "canonical",
			body: `{"qrCode":"q","otpAuthUrl":"o","secret":"s","userId":"u"}`,
			want: Enrollment{QRCode: "q", OTPAuthURL: "o", Secret: "s", UserID: "u"},
		},
		{
			name: "flat aliases",
			body: `{"qr":"q1","otp_url":"o1","secret":"s1","userId":"u"}`,
			want: Enrollment{QRCode: "q1", OTPAuthURL: "o1", Secret: "s1", UserID: "u"},
		},
		{
			name: "data url and snake",
			body: `{"qrCodeDataUrl":"q2","otpauth_url":"o2","userId":"u"}`,
			want: Enrollment{QRCode: "q2", OTPAuthURL: "o2", UserID: "u"},
		},
		{
			name: "nested",
			body: `{"mfa":{"qr":"q3","otpauth":"o3","secret":"s3"},"userId":"u"}`,
			want: Enrollment{QRCode: "q3", OTPAuthURL: "o3", Secret: "s3", UserID: "u"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			}))
			got, err := c.Register(context.Background(), "a@b.c", "pw")
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestVerifySendsExactlyOneFactor(t *testing.T) {
	var bodies []map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		_, _ = io.WriteString(w, `{"token":"jwt"}`)
	}))

	if tok, err := c.VerifyMFA(context.Background(), "u1", "123456"); err != nil || tok != "jwt" {
		t.Fatalf("VerifyMFA = %q, %v", tok, err)
	}
	if tok, err := c.VerifyBackupCode(context.Background(), "u1", "ABCD-EFGH"); err != nil || tok != "jwt" {
		t.Fatalf("VerifyBackupCode = %q, %v", tok, err)
	}

	if _, ok := bodies[0]["backupCode"]; ok || bodies[0]["token"] != "123456" {
		t.Fatalf("unexpected TOTP body %v", bodies[0])
	}
	if _, ok := bodies[1]["token"]; ok || bodies[1]["backupCode"] != "ABCD-EFGH" {
		t.Fatalf("unexpected backup body %v", bodies[1])
	}
}

func TestErrorResponsesCarryStatusAndMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Invalid code"}`)
	}))

	_, err := c.VerifyMFA(context.Background(), "u1", "000000")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "Invalid code" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d", StatusCode(err))
	}
}

func TestMeWithoutUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	u, err := c.Me(context.Background())
	if err != nil || u != nil {
		t.Fatalf("expected nil profile, got %+v, %v", u, err)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vault", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"1","siteName":"a","username":"x"},{"_id":"2","siteName":"b","username":"y"}]`)
	})
	mux.HandleFunc("POST /api/vault", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"itemId":"3"}`)
	})
	var updated map[string]any
	mux.HandleFunc("PUT /api/vault/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&updated)
		updated["_path"] = r.PathValue("id")
	})
	var deleted string
	mux.HandleFunc("DELETE /api/vault/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	items, err := c.ListVault(ctx)
	if err != nil {
		t.Fatalf("ListVault: %v", err)
	}
	if len(items) != 2 || items[0].ID != "1" || items[1].ID != "2" {
		t.Fatalf("unexpected items %+v", items)
	}

	item, err := c.AddVaultItem(ctx, NewVaultItem{SiteName: "c", Username: "z", Password: "p"})
	if err != nil {
		t.Fatalf("AddVaultItem: %v", err)
	}
	if item.ID != "3" || item.Password != "p" {
		t.Fatalf("unexpected item %+v", item)
	}

	name := "renamed"
	if err := c.UpdateVaultItem(ctx, "3", VaultItemUpdate{SiteName: &name}); err != nil {
		t.Fatalf("UpdateVaultItem: %v", err)
	}
	if updated["_path"] != "3" || updated["siteName"] != "renamed" {
		t.Fatalf("unexpected update %v", updated)
	}
	if _, ok := updated["password"]; ok {
		t.Fatal("partial update must omit unset fields")
	}

	if err := c.DeleteVaultItem(ctx, "3"); err != nil {
		t.Fatalf("DeleteVaultItem: %v", err)
	}
	if deleted != "3" {
		t.Fatalf("unexpected delete id %q", deleted)
	}
}

func TestRefresherPresentsCookieAndReturnsToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("refresh")
		if err != nil || c.Value != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh", Value: "r2", Path: "/"})
		_, _ = io.WriteString(w, `{"token":"new"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	hc := &http.Client{Jar: jar}

	r, err := NewRefresher(hc, srv.URL, DefaultPrefix)
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}

	if _, err := r.Refresh(context.Background()); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %v", err)
	}

	u, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	jar.SetCookies(u.URL, []*http.Cookie{{Name: "refresh", Value: "r1", Path: "/"}})

	tok, err := r.Refresh(context.Background())
	if err != nil || tok != "new" {
		t.Fatalf("Refresh = %q, %v", tok, err)
	}
	if got := jar.Cookies(u.URL); len(got) != 1 || got[0].Value != "r2" {
		t.Fatalf("expected rotated cookie, got %v", got)
	}
}

func TestVaultItemIDIsOnePathSegment(t *testing.T) {
	mux := http.NewServeMux()
	var deleted, rawPath string
	mux.HandleFunc("DELETE /api/vault/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		rawPath = r.URL.EscapedPath()
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request escaped the item route: %s %s", r.Method, r.URL.EscapedPath())
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	if err := c.DeleteVaultItem(ctx, "a/b ?x"); err != nil {
		t.Fatalf("DeleteVaultItem: %v", err)
	}
	if deleted != "a/b ?x" {
		t.Fatalf("expected id as one segment, got %q (path %s)", deleted, rawPath)
	}
	if rawPath != "/api/vault/a%2Fb%20%3Fx" {
		t.Fatalf("unexpected escaped path %q", rawPath)
	}

	for _, id := range []string{"", ".", ".."} {
		if err := c.DeleteVaultItem(ctx, id); !errors.Is(err, ErrItemID) {
			t.Fatalf("DeleteVaultItem(%q): expected ErrItemID, got %v", id, err)
		}
		if err := c.UpdateVaultItem(ctx, id, VaultItemUpdate{}); !errors.Is(err, ErrItemID) {
			t.Fatalf("UpdateVaultItem(%q): expected ErrItemID, got %v", id, err)
		}
	}
}
