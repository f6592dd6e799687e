package api

import "strings"

// DefaultPrefix is the path prefix every route is mounted under.
const DefaultPrefix = "/api"

// Route paths relative to the prefix.
const (
	RouteLogin        = "/auth/login"
	RouteRegister     = "/auth/register"
	RouteMFAVerify    = "/auth/mfa/verify"
	RouteBackupRotate = "/auth/mfa/backup/rotate"
	RouteMe           = "/auth/me"
	RouteLogout       = "/auth/logout"
	RouteRefresh      = "/auth/token/refresh"
	RouteVault        = "/vault"
)

// JoinPath joins URL path segments with single slashes and a leading slash.
func JoinPath(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
