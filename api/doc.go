// Package api is the typed client for the remote auth and vault service.
//
// Every call goes through the caller-supplied *http.Client, which is expected
// to carry the session transport. The refresh endpoint is the exception: it
// is posted through an un-wrapped client that shares the cookie jar, so a
// refresh can never recurse into another refresh.
package api
