package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/forcekit/client-go/internal/apierrors"
	"github.com/forcekit/client-go/internal/auth"
)

// Default configuration values.
const (
	DefaultAPIVersion = "v61.0"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	// DataPathPrefix is the path under the instance URL that versioned
	// resources live in.
	DataPathPrefix = "/services/data/"

	maxResponseBytes = 32 << 20
)

// TokenProvider supplies bearer tokens and accepts invalidation after a 401.
type TokenProvider interface {
	Token(ctx context.Context) (auth.CachedToken, error)
	Invalidate()
}

// Client is the HTTP API client.
type Client struct {
	tokens     TokenProvider
	httpClient *http.Client
	apiVersion string
	timeout    time.Duration
	retry      RetryPolicy
	limiter    *rate.Limiter
	logger     hclog.Logger

	// sleep waits between retries. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures the API client.
type Option func(*Client)

// WithAPIVersion sets the versioned path segment, e.g. "v61.0".
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		c.apiVersion = version
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetries sets the default retry budget.
func WithRetries(retries int) Option {
	return func(c *Client) {
		c.retry.MaxRetries = retries
	}
}

// WithRetryDelay sets the wait before the first retry.
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = delay
	}
}

// WithHTTPClient sets the HTTP client used for resource calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimiter throttles every attempt through limiter.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a new API client.
func New(tokens TokenProvider, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}

	c := &Client{
		tokens:     tokens,
		httpClient: &http.Client{},
		apiVersion: DefaultAPIVersion,
		timeout:    DefaultTimeout,
		retry:      DefaultRetryPolicy(),
		sleep:      sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	if c.apiVersion == "" {
		return nil, fmt.Errorf("API version is required")
	}
	if !strings.HasPrefix(c.apiVersion, "v") {
		c.apiVersion = "v" + c.apiVersion
	}
	if c.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got: %v", c.timeout)
	}
	if c.retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative, got: %d", c.retry.MaxRetries)
	}

	return c, nil
}

// APIVersion returns the configured API version.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// Request describes one logical API call.
type Request struct {
	Method string
	// Path is relative to the versioned data prefix, e.g. "/limits/".
	Path string
	// Body is JSON encoded when non-nil.
	Body any
	// Header values override the defaults.
	Header http.Header
	// Retries overrides the client's retry budget when non-nil.
	Retries *int
}

// Do executes a request with the client's default headers and retry budget.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	return c.Execute(ctx, Request{Method: method, Path: path, Body: body}, result)
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeUnauthorized
	outcomeRateLimited
	outcomeServerError
	outcomeTimeout
	outcomeFatal
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeUnauthorized:
		return "unauthorized"
	case outcomeRateLimited:
		return "rate limited"
	case outcomeServerError:
		return "server error"
	case outcomeTimeout:
		return "timeout"
	}
	return "final"
}

type outcome struct {
	kind   outcomeKind
	status int
	body   string
	err    error
}

// Execute performs req, retrying transient failures within the retry budget,
// and decodes a 2xx JSON body into result. A 204 or empty body leaves result
// untouched. If result implements validation.Validatable, it is validated
// after decoding.
func (c *Client) Execute(ctx context.Context, req Request, result any) error {
	var payload []byte
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	budget := c.retry.MaxRetries
	if req.Retries != nil {
		budget = *req.Retries
	}
	remaining := budget
	schedule := c.retry.schedule()
	operation := req.Method + " " + req.Path

	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		out := c.attempt(ctx, tok, req, payload, result, attempt)
		switch out.kind {
		case outcomeSuccess:
			return nil
		case outcomeFatal:
			return out.err
		case outcomeUnauthorized:
			c.tokens.Invalidate()
		}

		if remaining <= 0 {
			return c.exhausted(out, operation, attempt)
		}
		remaining--
		delay := schedule.NextBackOff()

		if out.kind == outcomeUnauthorized {
			c.logger.Debug("retrying with fresh token", "operation", operation, "attempt", attempt)
			continue
		}

		c.logger.Debug("retrying request",
			"operation", operation,
			"reason", out.kind.String(),
			"status", out.status,
			"attempt", attempt,
			"delay", delay,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) exhausted(out outcome, operation string, attempts int) error {
	switch out.kind {
	case outcomeUnauthorized:
		return &apierrors.AuthenticationError{StatusCode: out.status, Body: out.body}
	case outcomeRateLimited:
		return &apierrors.RateLimitError{Body: out.body, Attempts: attempts}
	case outcomeServerError:
		return &apierrors.ServerError{StatusCode: out.status, Body: out.body, Attempts: attempts}
	case outcomeTimeout:
		return &apierrors.TimeoutError{Operation: operation, Timeout: c.timeout, Attempts: attempts, Err: out.err}
	}
	return out.err
}

func (c *Client) url(instanceURL, path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return instanceURL + DataPathPrefix + c.apiVersion + path
}

// attempt performs exchange n of a call, bounded by the client timeout.
func (c *Client) attempt(ctx context.Context, tok auth.CachedToken, req Request, payload []byte, result any, n int) outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	endpoint := c.url(tok.InstanceURL, req.Path)
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, endpoint, bodyReader)
	if err != nil {
		return outcome{kind: outcomeFatal, err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.transportFailure(ctx, err, endpoint, n)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.transportFailure(ctx, err, endpoint, n)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return outcome{kind: outcomeUnauthorized, status: resp.StatusCode, body: string(body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return outcome{kind: outcomeRateLimited, status: resp.StatusCode, body: string(body)}
	case resp.StatusCode >= 500:
		return outcome{kind: outcomeServerError, status: resp.StatusCode, body: string(body)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return outcome{kind: outcomeFatal, err: parseErrorResponse(resp.StatusCode, body)}
	case resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0:
		return outcome{kind: outcomeSuccess}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return outcome{kind: outcomeFatal, err: &apierrors.ValidationError{
				Subject: "response body",
				Errors:  []string{err.Error()},
			}}
		}
		if v, ok := result.(validation.Validatable); ok {
			if err := apierrors.NewValidationError("response body", v.Validate()); err != nil {
				return outcome{kind: outcomeFatal, err: err}
			}
		}
	}
	return outcome{kind: outcomeSuccess}
}

// transportFailure classifies an error from the transport. A canceled
// caller context is final; an attempt that ran out of time is a timeout.
func (c *Client) transportFailure(ctx context.Context, err error, endpoint string, n int) outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome{kind: outcomeFatal, err: ctxErr}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return outcome{kind: outcomeTimeout, err: err}
	}
	return outcome{kind: outcomeFatal, err: &apierrors.NetworkError{Err: err, URL: endpoint, Attempt: n}}
}

// parseErrorResponse builds an APIError from a structured error payload,
// falling back to the raw body.
func parseErrorResponse(status int, body []byte) error {
	apiErr := &apierrors.APIError{
		StatusCode: status,
		Body:       string(body),
	}

	var details []apierrors.ErrorDetail
	if err := json.Unmarshal(body, &details); err == nil && hasMessages(details) {
		apiErr.Details = details
		return apiErr
	}

	var single apierrors.ErrorDetail
	if err := json.Unmarshal(body, &single); err == nil && single.Message != "" {
		apiErr.Details = []apierrors.ErrorDetail{single}
	}
	return apiErr
}

func hasMessages(details []apierrors.ErrorDetail) bool {
	for _, d := range details {
		if d.Message != "" || d.ErrorCode != "" {
			return true
		}
	}
	return false
}
