// Package lockr is the client-side authentication and session core of the
// lockr password manager.
//
// A [Controller] drives the login → MFA → secret setup → unlock state machine
// and owns the in-memory [Session]. The session is injected into the
// [transport.Transport] that every authenticated request goes through, which
// attaches the bearer token, attaches the vault unlock secret on vault routes,
// and performs the single-flight cookie refresh on 401.
//
// Build one with [New]:
//
//	c, err := lockr.New().
//		WithConfig(cfg).
//		WithKeyStore(store).
//		WithAuthenticator(bio).
//		Build()
//
// # Persistence
//
// Only two things ever reach durable storage: the device identity (the user
// id that forces MFA on every cold start) and the vault unlock secret. The
// access token lives in memory only.
//
// # What this package must NOT do
//
//   - Persist the access token.
//   - Establish a session from first-factor credentials alone.
//   - Delete the vault unlock secret on logout or refresh failure.
//   - Distinguish wrong secret from declined or unavailable biometrics.
package lockr
