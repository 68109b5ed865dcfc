package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/forcekit/client-go/internal/apierrors"
)

const (
	// GrantTypeJWTBearer is the grant type of the assertion exchange.
	GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// TokenPath is the token endpoint path under the login URL.
	TokenPath = "/services/oauth2/token"

	// DefaultTokenTTL is how long a token is served from cache. It is kept
	// below the server's usual session lifetime to force proactive refresh.
	DefaultTokenTTL = 55 * time.Minute

	// DefaultTimeout bounds a single token exchange.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// AssertionSigner produces signed assertions.
type AssertionSigner interface {
	Sign() (string, error)
}

// Config configures an Authenticator.
type Config struct {
	// LoginURL is the base URL of the token endpoint.
	LoginURL string
	// DefaultInstanceURL is used when the token response has no instance_url.
	DefaultInstanceURL string
	// Signer builds the assertion for each exchange.
	Signer AssertionSigner
	// HTTPClient performs the exchange. Defaults to a client without timeout;
	// the exchange is bounded by Timeout instead.
	HTTPClient *http.Client
	// TokenTTL is the local cache lifetime. Default: 55 minutes.
	TokenTTL time.Duration
	// Timeout bounds one exchange. Default: 30 seconds.
	Timeout time.Duration
	// Logger receives debug output. Default: null logger.
	Logger hclog.Logger
}

// Authenticator exchanges assertions for access tokens and caches the result.
type Authenticator struct {
	loginURL           string
	defaultInstanceURL string
	signer             AssertionSigner
	httpClient         *http.Client
	ttl                time.Duration
	timeout            time.Duration
	logger             hclog.Logger

	mu    sync.Mutex // serializes cache-miss exchanges
	cache *TokenCache
	now   func() time.Time
}

// New creates an Authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.LoginURL == "" {
		return nil, fmt.Errorf("login URL is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("assertion signer is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Authenticator{
		loginURL:           strings.TrimRight(cfg.LoginURL, "/"),
		defaultInstanceURL: strings.TrimRight(cfg.DefaultInstanceURL, "/"),
		signer:             cfg.Signer,
		httpClient:         cfg.HTTPClient,
		ttl:                cfg.TokenTTL,
		timeout:            cfg.Timeout,
		logger:             cfg.Logger,
		cache:              NewTokenCache(),
		now:                time.Now,
	}, nil
}

// SetClock overrides the time source of the authenticator and its cache.
// Intended for tests.
func (a *Authenticator) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
	a.cache.mu.Lock()
	a.cache.now = now
	a.cache.mu.Unlock()
}

// Token returns a valid token, exchanging a new assertion on a cache miss.
func (a *Authenticator) Token(ctx context.Context) (CachedToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if tok, ok := a.cache.Get(); ok {
		return tok, nil
	}

	tok, err := a.exchange(ctx)
	if err != nil {
		return CachedToken{}, err
	}
	a.cache.Set(tok)
	return tok, nil
}

// Invalidate drops the cached token. It is idempotent.
func (a *Authenticator) Invalidate() {
	a.cache.Clear()
	a.logger.Debug("access token invalidated")
}

// tokenResponse is the success body of the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	ID          string `json:"id"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	IssuedAt    string `json:"issued_at"`
}

// Validate checks the fields the client relies on.
func (r tokenResponse) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required),
		validation.Field(&r.InstanceURL, validation.Required, validation.By(absoluteHTTPURL)),
	)
}

func absoluteHTTPURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validation.NewError("validation_is_url", "must be an absolute http(s) URL")
	}
	return nil
}

// oauthError is the failure body of the token endpoint.
type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (a *Authenticator) exchange(ctx context.Context) (CachedToken, error) {
	signed, err := a.signer.Sign()
	if err != nil {
		return CachedToken{}, err
	}

	form := url.Values{}
	form.Set("grant_type", GrantTypeJWTBearer)
	form.Set("assertion", signed)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	endpoint := a.loginURL + TokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return CachedToken{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting access token", "endpoint", endpoint)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return CachedToken{}, &apierrors.AuthenticationError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return CachedToken{}, &apierrors.AuthenticationError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		authErr := &apierrors.AuthenticationError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
		var oe oauthError
		if json.Unmarshal(body, &oe) == nil {
			authErr.Code = oe.Error
			authErr.Description = oe.Description
		}
		a.logger.Debug("token exchange rejected", "status", resp.StatusCode, "error", authErr.Code)
		return CachedToken{}, authErr
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return CachedToken{}, &apierrors.ValidationError{
			Subject: "token response",
			Errors:  []string{err.Error()},
		}
	}
	if tr.InstanceURL == "" {
		tr.InstanceURL = a.defaultInstanceURL
	}
	if err := tr.Validate(); err != nil {
		return CachedToken{}, apierrors.NewValidationError("token response", err)
	}

	tok := CachedToken{
		AccessToken: tr.AccessToken,
		InstanceURL: strings.TrimRight(tr.InstanceURL, "/"),
		ExpiresAt:   a.now().Add(a.ttl),
	}
	a.logger.Debug("access token cached", "instance_url", tok.InstanceURL, "expires_at", tok.ExpiresAt)
	return tok, nil
}
