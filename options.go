package forcekit

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/forcekit/client-go/internal/api"
	"github.com/forcekit/client-go/internal/auth"
)

const (
	// DefaultLoginURL is the production login host.
	DefaultLoginURL = "https://login.salesforce.com"
	// DefaultInstanceURL is used only when the token response names no instance.
	DefaultInstanceURL = "https://login.salesforce.com"
	// DefaultAPIVersion is the REST API version requested.
	DefaultAPIVersion = api.DefaultAPIVersion
	// DefaultTokenTTL is how long an access token is reused.
	DefaultTokenTTL = auth.DefaultTokenTTL
	// DefaultTimeout bounds each request attempt.
	DefaultTimeout = api.DefaultTimeout
	// DefaultMaxRetries is the retry budget of each call.
	DefaultMaxRetries = api.DefaultMaxRetries
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	loginURL    string
	instanceURL string
	apiVersion  string
	tokenTTL    time.Duration
	timeout     time.Duration
	retries     int
	retryDelay  time.Duration
	httpClient  *http.Client
	logger      hclog.Logger
	limiter     *rate.Limiter
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		loginURL:    DefaultLoginURL,
		instanceURL: DefaultInstanceURL,
		apiVersion:  DefaultAPIVersion,
		tokenTTL:    DefaultTokenTTL,
		timeout:     DefaultTimeout,
		retries:     DefaultMaxRetries,
		retryDelay:  api.DefaultRetryDelay,
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithLoginURL sets the login host the token exchange is sent to, e.g.
// https://test.salesforce.com for sandboxes. It is also the assertion
// audience.
func WithLoginURL(url string) Option {
	return func(c *clientConfig) {
		c.loginURL = url
	}
}

// WithInstanceURL sets the instance used when the token response does not
// name one.
func WithInstanceURL(url string) Option {
	return func(c *clientConfig) {
		c.instanceURL = url
	}
}

// WithAPIVersion sets the REST API version, e.g. "v61.0".
func WithAPIVersion(version string) Option {
	return func(c *clientConfig) {
		c.apiVersion = version
	}
}

// WithTokenTTL sets how long an access token is reused before a new
// exchange. Default: 55 minutes
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.tokenTTL = ttl
	}
}

// WithTimeout sets the per-attempt timeout of resource calls and the
// timeout of the token exchange.
// Default: 30 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the retry budget of each call.
// Default: 3
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithRetryDelay sets the wait before the first retry. Each later retry
// waits twice as long.
// Default: 1 second
func WithRetryDelay(delay time.Duration) Option {
	return func(c *clientConfig) {
		c.retryDelay = delay
	}
}

// WithHTTPClient sets a custom HTTP client for both the token exchange and
// resource calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithLogger sets the logger. The client logs at debug level only.
func WithLogger(logger hclog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithRateLimit throttles request attempts to limit per second with the
// given burst.
func WithRateLimit(limit float64, burst int) Option {
	return func(c *clientConfig) {
		c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// requestConfig holds per-call configuration for Do.
type requestConfig struct {
	retries *int
	header  http.Header
}

// RequestOption configures a single Do call.
type RequestOption func(*requestConfig)

// WithRequestRetries overrides the retry budget for one call.
func WithRequestRetries(count int) RequestOption {
	return func(c *requestConfig) {
		c.retries = &count
	}
}

// WithHeader adds a header to one call, replacing any default of the same name.
func WithHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		if c.header == nil {
			c.header = make(http.Header)
		}
		c.header.Add(key, value)
	}
}
