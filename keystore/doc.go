// Package keystore defines the secure-storage capability consumed by lockr.
//
// # Architecture boundaries
//
// A Store is the platform's secure storage (Keychain, Keystore, a sealed file
// on desktop). lockr never reimplements platform protection: it only names
// items, chooses the service they live under, and asks for authentication on
// read where the platform supports it.
//
// # What this package must NOT do
//
//   - Prompt the user. Authentication-required reads are enforced by the
//     backend (see [Memory.Gate]) or by the platform.
//   - Interpret values. Items are opaque strings.
package keystore
