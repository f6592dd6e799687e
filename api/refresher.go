package api

import (
	"context"
	"net/http"
)

// Refresher posts the cookie-authenticated refresh endpoint.
//
// hc must not carry the session transport; it should share that transport's
// cookie jar so the HttpOnly refresh cookie is presented and rotated.
type Refresher struct {
	hc     *http.Client
	target string
}

// NewRefresher returns a Refresher for baseURL joined with prefix.
func NewRefresher(hc *http.Client, baseURL, prefix string) (*Refresher, error) {
	base, err := parseBase(baseURL, prefix)
	if err != nil {
		return nil, err
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	u := *base
	u.Path = JoinPath(base.Path, RouteRefresh)
	return &Refresher{hc: hc, target: u.String()}, nil
}

// Refresh renews the session. The returned token is empty when the service
// rotates only the cookie.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	var out tokenResponse
	if err := send(ctx, r.hc, http.MethodPost, r.target, nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}
