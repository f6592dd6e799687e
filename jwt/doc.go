// Package jwt issues and verifies access tokens for the reference service and
// lets the client read informational claims from a token it was handed.
//
// The client never trusts Inspect for authorization decisions; it only uses
// the expiry for display and diagnostics.
package jwt
