// Package auth obtains and caches access tokens using the OAuth 2.0 JWT
// bearer grant.
//
// The [Authenticator] owns a single-slot [TokenCache]. A cached token is
// served until its local expiry instant, which is computed from a
// configurable TTL rather than from the server's real token lifetime so the
// client refreshes before the server starts rejecting the token. Callers that
// observe a rejected token call [Authenticator.Invalidate]; the next
// [Authenticator.Token] call performs a fresh exchange.
//
// # Thread Safety
//
// [Authenticator] is safe for concurrent use. The cache check, the token
// exchange and the cache write run under one mutex, so concurrent callers
// that miss the cache share a single exchange.
package auth
