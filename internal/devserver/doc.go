// Package devserver is a reference implementation of the remote auth and
// vault service the lockr client talks to. It backs integration tests and
// local development; it is not a production server.
//
// # Storage layout (Redis)
//
//	lockr:email:<email>        -> user id (SETNX)
//	lockr:user:<id>            hash: email, password, totp, role, timestamps, vault salt/check
//	lockr:backup:<id>          set of sha256(code)
//	lockr:totp:<id>:<counter>  replay marker, TTL covers the skew window
//	lockr:refresh:<sha256>     hash: user, sid; TTL = RefreshTTL
//	lockr:revoked:<sid>        access tokens minted from a logged-out session
//	lockr:vault:<id>           hash: item id -> sealed item
//
// # What this package must NOT do
//
//   - Persist a vault item in clear text. Items are sealed under a key
//     derived from the master password presented on each request.
//   - Log passwords, codes, tokens or master passwords.
package devserver
