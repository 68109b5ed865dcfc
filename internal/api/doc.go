// Package api provides HTTP client functionality for communicating with the
// REST data API. It handles authentication, request/response serialization,
// and automatic retry logic with exponential backoff for transient failures.
//
// # Client Creation
//
// [New] takes a [TokenProvider] and functional options. The provider supplies
// the bearer token and the instance URL that every request is resolved
// against:
//
//	{instance_url}/services/data/{apiVersion}{path}
//
// # Retry Behavior
//
// [Client.Execute] is the only place in the module that retries. Each call
// has a retry budget (default 3) and each attempt runs under its own timeout
// (default 30s). Responses are handled in this order:
//
//   - 401 Unauthorized: the cached token is invalidated, then the request is
//     retried at once with a fresh token.
//   - 429 Too Many Requests: retried after a backoff delay.
//   - 5xx: retried after a backoff delay.
//   - attempt timeout: retried after a backoff delay.
//   - any other non-2xx: returned as an [apierrors.APIError], never retried.
//
// The backoff delay is 2^n seconds where n counts the retries already made
// for this call, so a budget of 3 waits 1s, 2s, then 4s. There is no jitter.
// When the budget runs out the last failure is returned as a typed error:
// [apierrors.AuthenticationError], [apierrors.RateLimitError],
// [apierrors.ServerError] or [apierrors.TimeoutError].
//
// # Pagination
//
// [Client.Query] follows nextRecordsUrl continuation links until the server
// reports the result set is done, returning every record in server order.
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use. Multiple goroutines may call
// methods on a single Client simultaneously.
package api
