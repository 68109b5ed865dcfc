package forcekit

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"

	"github.com/forcekit/client-go/internal/api"
	"github.com/forcekit/client-go/internal/assertion"
	"github.com/forcekit/client-go/internal/auth"
)

type (
	// Record is one row of a query result or a fetched record, keyed by
	// field API name.
	Record = api.Record
	// RecordAttributes is the type and URL the server attaches to records.
	RecordAttributes = api.RecordAttributes
	// QueryResult is one page of a query response.
	QueryResult = api.QueryResult
	// SaveResult is the outcome of a create.
	SaveResult = api.SaveResult
	// UpsertResult is the outcome of an upsert.
	UpsertResult = api.UpsertResult
	// Limit is one entry of the org limits resource.
	Limit = api.Limit
	// SObjectDescribe is object metadata.
	SObjectDescribe = api.SObjectDescribe
	// FieldDescribe is field metadata.
	FieldDescribe = api.FieldDescribe
)

// Credentials identify the integration user. They are immutable once the
// client is built.
type Credentials struct {
	// ClientID is the connected app's consumer key, the assertion issuer.
	ClientID string
	// Username is the user the client acts as, the assertion subject.
	Username string
	// PrivateKey signs assertions. Its certificate must be uploaded to the
	// connected app.
	PrivateKey *rsa.PrivateKey
}

func (c Credentials) validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client ID")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.PrivateKey == nil {
		missing = append(missing, "private key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Client is an authenticated REST API client. It is safe for concurrent use.
type Client struct {
	auth       *auth.Authenticator
	apiClient  *api.Client
	httpClient *http.Client
	logger     hclog.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates a client for the given credentials. No network call is made
// until the first operation.
func New(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.loginURL == "" {
		return nil, fmt.Errorf("login URL is required")
	}
	if cfg.logger == nil {
		cfg.logger = hclog.NewNullLogger()
	}
	loginURL := strings.TrimRight(cfg.loginURL, "/")

	signer, err := assertion.NewSigner(creds.PrivateKey, assertion.Claims{
		Issuer:   creds.ClientID,
		Subject:  creds.Username,
		Audience: loginURL,
	})
	if err != nil {
		return nil, err
	}

	authenticator, err := auth.New(auth.Config{
		LoginURL:           loginURL,
		DefaultInstanceURL: cfg.instanceURL,
		Signer:             signer,
		HTTPClient:         cfg.httpClient,
		TokenTTL:           cfg.tokenTTL,
		Timeout:            cfg.timeout,
		Logger:             cfg.logger.Named("auth"),
	})
	if err != nil {
		return nil, err
	}

	apiClient, err := buildAPIClient(authenticator, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		auth:       authenticator,
		apiClient:  apiClient,
		httpClient: cfg.httpClient,
		logger:     cfg.logger,
	}, nil
}

// buildAPIClient creates and configures an API client from the given config.
func buildAPIClient(tokens api.TokenProvider, cfg *clientConfig) (*api.Client, error) {
	apiOpts := []api.Option{
		api.WithAPIVersion(cfg.apiVersion),
		api.WithTimeout(cfg.timeout),
		api.WithRetries(cfg.retries),
		api.WithRetryDelay(cfg.retryDelay),
		api.WithLogger(cfg.logger.Named("api")),
	}
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.httpClient))
	}
	if cfg.limiter != nil {
		apiOpts = append(apiOpts, api.WithRateLimiter(cfg.limiter))
	}
	return api.New(tokens, apiOpts...)
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// APIVersion returns the REST API version the client requests.
func (c *Client) APIVersion() string {
	return c.apiClient.APIVersion()
}

// queryConfig holds configuration for queries.
type queryConfig struct {
	firstPageOnly  bool
	includeDeleted bool
}

// QueryOption configures a query.
type QueryOption func(*queryConfig)

// WithFirstPageOnly stops after the first page. Use QueryPage to learn
// whether more pages exist.
func WithFirstPageOnly() QueryOption {
	return func(c *queryConfig) {
		c.firstPageOnly = true
	}
}

// WithDeleted includes deleted and archived records.
func WithDeleted() QueryOption {
	return func(c *queryConfig) {
		c.includeDeleted = true
	}
}

func buildQueryOptions(opts []QueryOption) api.QueryOptions {
	cfg := &queryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return api.QueryOptions{
		FirstPageOnly:  cfg.firstPageOnly,
		IncludeDeleted: cfg.includeDeleted,
	}
}

// Query runs a SOQL query and returns every matching record in server
// order, following continuation links until the result set is done.
func (c *Client) Query(ctx context.Context, soql string, opts ...QueryOption) ([]Record, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.Query(ctx, soql, buildQueryOptions(opts))
}

// QueryAll is Query including deleted and archived records.
func (c *Client) QueryAll(ctx context.Context, soql string, opts ...QueryOption) ([]Record, error) {
	return c.Query(ctx, soql, append(opts[:len(opts):len(opts)], WithDeleted())...)
}

// QueryPage returns the first page of a query with its Done flag and
// continuation link.
func (c *Client) QueryPage(ctx context.Context, soql string, opts ...QueryOption) (*QueryResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.QueryPage(ctx, soql, buildQueryOptions(opts))
}

// QueryMore fetches the page a QueryResult.NextRecordsURL points to.
func (c *Client) QueryMore(ctx context.Context, nextRecordsURL string) (*QueryResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.QueryMore(ctx, nextRecordsURL)
}

// Get retrieves a record. With no fields, every readable field is returned.
func (c *Client) Get(ctx context.Context, sobjectType, id string, fields ...string) (Record, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.Get(ctx, sobjectType, id, fields...)
}

// Create inserts a record. record is any JSON-encodable value.
func (c *Client) Create(ctx context.Context, sobjectType string, record any) (*SaveResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.Create(ctx, sobjectType, record)
}

// Update patches fields of an existing record.
func (c *Client) Update(ctx context.Context, sobjectType, id string, record any) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.apiClient.Update(ctx, sobjectType, id, record)
}

// Upsert creates or updates the record matched by an external ID field.
func (c *Client) Upsert(ctx context.Context, sobjectType, externalField, externalValue string, record any) (*UpsertResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.Upsert(ctx, sobjectType, externalField, externalValue, record)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, sobjectType, id string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.apiClient.Delete(ctx, sobjectType, id)
}

// Limits returns the org's API limits keyed by name.
func (c *Client) Limits(ctx context.Context) (map[string]Limit, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.Limits(ctx)
}

// Describe returns object metadata.
func (c *Client) Describe(ctx context.Context, sobjectType string) (*SObjectDescribe, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.apiClient.Describe(ctx, sobjectType)
}

// Do sends a request to any path under the versioned data prefix, with the
// same authentication and retry policy as the typed operations. body is JSON
// encoded when non-nil; a 2xx JSON response is decoded into result.
func (c *Client) Do(ctx context.Context, method, path string, body, result any, opts ...RequestOption) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	cfg := &requestConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return c.apiClient.Execute(ctx, api.Request{
		Method:  method,
		Path:    path,
		Body:    body,
		Header:  cfg.header,
		Retries: cfg.retries,
	}, result)
}

// ClearTokenCache discards the cached access token. The next call performs
// a fresh exchange.
func (c *Client) ClearTokenCache() {
	c.auth.Invalidate()
}

// InstanceURL returns the instance the current access token is bound to,
// exchanging a token first if none is cached.
func (c *Client) InstanceURL(ctx context.Context) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	tok, err := c.auth.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.InstanceURL, nil
}

// TokenSource returns an oauth2.TokenSource backed by the client's token
// cache. The instance URL is available as tok.Extra("instance_url"). Once
// the client is closed, Token returns ErrClientClosed.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &clientTokenSource{client: c, src: c.auth.TokenSource(ctx)}
}

type clientTokenSource struct {
	client *Client
	src    oauth2.TokenSource
}

func (s *clientTokenSource) Token() (*oauth2.Token, error) {
	if err := s.client.checkOpen(); err != nil {
		return nil, err
	}
	return s.src.Token()
}

// HTTPClient returns an *http.Client that adds the bearer token to every
// request, for endpoints the typed operations do not cover. Each request
// reads the token cache, so ClearTokenCache and 401 invalidations from other
// calls take effect immediately. It does not retry.
func (c *Client) HTTPClient(ctx context.Context) *http.Client {
	base := http.DefaultTransport
	client := &http.Client{}
	if c.httpClient != nil {
		if c.httpClient.Transport != nil {
			base = c.httpClient.Transport
		}
		client.Timeout = c.httpClient.Timeout
		client.CheckRedirect = c.httpClient.CheckRedirect
		client.Jar = c.httpClient.Jar
	}
	// oauth2.NewClient would wrap the source in a ReuseTokenSource, which
	// keeps serving a token after the cache has dropped it.
	client.Transport = &oauth2.Transport{Source: c.TokenSource(ctx), Base: base}
	return client
}

// Close discards the cached token. Later operations return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.auth.Invalidate()
	c.logger.Debug("client closed")
	return nil
}
