// Package forcekit provides a Go client for the Salesforce REST API that
// authenticates server to server with the OAuth 2.0 JWT bearer grant.
//
// The client signs a short-lived RS256 assertion with the integration user's
// private key, exchanges it for an access token, and caches the token for
// reuse. Every resource call shares one retry policy: a 401 discards the
// cached token and retries with a fresh one, while 429, 5xx and attempt
// timeouts are retried with exponential backoff (1s, 2s, 4s, ...).
//
// Basic usage:
//
//	cfg, err := forcekit.LoadConfigFromEnv(".env")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := forcekit.NewFromConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Query every page of a result set
//	records, err := client.Query(ctx, "SELECT Id, Name FROM Account")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var accounts []struct {
//	    ID   string `json:"Id"`
//	    Name string `json:"Name"`
//	}
//	if err := forcekit.DecodeRecords(records, &accounts); err != nil {
//	    log.Fatal(err)
//	}
//
// Errors are typed. Use errors.Is with the sentinel errors (ErrUnauthorized,
// ErrRateLimited, ErrNotFound, ...) or errors.As with the error structs
// (APIError, RateLimitError, ...).
package forcekit
