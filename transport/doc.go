// Package transport implements the session-aware HTTP round tripper used for
// every authenticated call the client makes.
//
// # Request augmentation
//
// Each outgoing request is cloned and receives, in order: the bearer token
// held by the session (or a legacy durable token when the session holds
// none), the vault secret header on vault-scoped paths when the caller did not
// set one, and a request id.
//
// # Refresh
//
// A 401 on a request that is not marked retried triggers the cookie-based
// refresh. Refreshes are single-flight: concurrent failures share one call,
// and a failure observed on a request sent before an already-settled refresh
// reuses that outcome instead of refreshing again. Successful refresh retries
// the original request exactly once; failed refresh clears the session token
// and returns the original 401.
//
// # What this package must NOT do
//
//   - Persist tokens.
//   - Retry on anything but 401, or more than once.
package transport
