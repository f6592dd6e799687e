package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBytes = 1 << 20

// Client calls the remote service through an authenticated *http.Client.
type Client struct {
	hc   *http.Client
	base *url.URL
}

// NewClient returns a Client rooted at baseURL joined with prefix.
func NewClient(hc *http.Client, baseURL, prefix string) (*Client, error) {
	base, err := parseBase(baseURL, prefix)
	if err != nil {
		return nil, err
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc, base: base}, nil
}

func parseBase(baseURL, prefix string) (*url.URL, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBaseURL, baseURL)
	}
	u.Path = JoinPath(u.Path, prefix)
	if u.Path == "/" {
		u.Path = ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Client) url(route string) string {
	u := *c.base
	u.Path = JoinPath(c.base.Path, route)
	return u.String()
}

// Login submits the first factor.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, RouteLogin, credentials{Email: email, Password: password}, &out)
	return out, err
}

// Register creates an account and returns its MFA enrolment material.
func (c *Client) Register(ctx context.Context, email, password string) (Enrollment, error) {
	var out registerResponse
	if err := c.do(ctx, http.MethodPost, RouteRegister, credentials{Email: email, Password: password}, &out); err != nil {
		return Enrollment{}, err
	}
	return out.normalize(), nil
}

// VerifyMFA submits a TOTP code. An empty token with a nil error means the
// service answered without issuing a session.
func (c *Client) VerifyMFA(ctx context.Context, userID, code string) (string, error) {
	return c.verify(ctx, mfaRequest{UserID: userID, Token: code})
}

// VerifyBackupCode submits a single-use backup code.
func (c *Client) VerifyBackupCode(ctx context.Context, userID, code string) (string, error) {
	return c.verify(ctx, mfaRequest{UserID: userID, BackupCode: code})
}

func (c *Client) verify(ctx context.Context, req mfaRequest) (string, error) {
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, RouteMFAVerify, req, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// RotateBackupCodes replaces the account's backup codes and returns the new set.
func (c *Client) RotateBackupCodes(ctx context.Context) ([]string, error) {
	var out struct {
		Codes []string `json:"codes"`
	}
	if err := c.do(ctx, http.MethodPost, RouteBackupRotate, nil, &out); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

// Me fetches the current profile. A response without a user yields nil.
func (c *Client) Me(ctx context.Context) (*UserProfile, error) {
	var out struct {
		User *UserProfile `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, RouteMe, nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Logout invalidates the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, RouteLogout, nil, nil)
}

// ListVault returns every decrypted item.
func (c *Client) ListVault(ctx context.Context) ([]VaultItem, error) {
	var wire []wireVaultItem
	if err := c.do(ctx, http.MethodGet, RouteVault, nil, &wire); err != nil {
		return nil, err
	}
	items := make([]VaultItem, 0, len(wire))
	for _, w := range wire {
		item := w.VaultItem
		if item.ID == "" {
			item.ID = w.LegacyID
		}
		items = append(items, item)
	}
	return items, nil
}

// AddVaultItem stores a new item and returns it with its assigned id.
func (c *Client) AddVaultItem(ctx context.Context, in NewVaultItem) (VaultItem, error) {
	var out struct {
		ItemID string `json:"itemId"`
	}
	if err := c.do(ctx, http.MethodPost, RouteVault, in, &out); err != nil {
		return VaultItem{}, err
	}
	return VaultItem{
		ID:       out.ItemID,
		SiteName: in.SiteName,
		Username: in.Username,
		Password: in.Password,
		Notes:    in.Notes,
	}, nil
}

// UpdateVaultItem applies a partial update.
func (c *Client) UpdateVaultItem(ctx context.Context, id string, in VaultItemUpdate) error {
	target, err := c.itemURL(id)
	if err != nil {
		return err
	}
	return send(ctx, c.hc, http.MethodPut, target, in, nil)
}

// DeleteVaultItem removes an item.
func (c *Client) DeleteVaultItem(ctx context.Context, id string) error {
	target, err := c.itemURL(id)
	if err != nil {
		return err
	}
	return send(ctx, c.hc, http.MethodDelete, target, nil, nil)
}

// itemURL addresses one vault item with id escaped as a single path segment.
func (c *Client) itemURL(id string) (string, error) {
	if id == "" || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrItemID, id)
	}
	u := *c.base
	u.Path = JoinPath(c.base.Path, RouteVault) + "/" + id
	u.RawPath = JoinPath(c.base.EscapedPath(), RouteVault) + "/" + url.PathEscape(id)
	return u.String(), nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type mfaRequest struct {
	UserID     string `json:"userId"`
	Token      string `json:"token,omitempty"`
	BackupCode string `json:"backupCode,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (c *Client) do(ctx context.Context, method, route string, in, out any) error {
	return send(ctx, c.hc, method, c.url(route), in, out)
}

func send(ctx context.Context, hc *http.Client, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
