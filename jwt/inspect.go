package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by Inspect for opaque tokens.
var ErrNotJWT = errors.New("token is not a JWT")

// Info is the unverified claim summary of a bearer token.
type Info struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Inspect decodes tokenStr without verifying its signature. Zero times mean
// the claim is absent.
func Inspect(tokenStr string) (Info, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return Info{}, errors.Join(ErrNotJWT, err)
	}
	info := Info{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	return info, nil
}
