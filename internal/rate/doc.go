// Package rate implements Redis-backed fixed-window attempt counters.
//
// # Window semantics
//
// INCR + conditional EXPIRE on first hit. Keys are
// "<prefix>:<scope>:<id>"; scopes in use by the reference service:
//   - login: failed password attempts per normalised email
//   - mfa:   failed second-factor attempts per user id
//
// # What this package must NOT do
//
//   - Decide what counts as a failure. Callers record failures explicitly.
//   - Be imported outside the lockr module.
package rate
