// Package secret holds the vault unlock secret on the device.
//
// # Invariants
//
//   - Save never requires authentication, so the first-time write succeeds
//     before any biometric enrolment exists.
//   - Read for use always asks for authentication: a biometric/PIN challenge
//     when hardware is present and enrolled, then an authentication-required
//     storage read.
//   - Exists never prompts.
//
// Read reports absence as a single outcome. Missing item, declined challenge
// and storage failure are deliberately indistinguishable to callers.
package secret
