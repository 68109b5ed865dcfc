package forcekit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDefaultClientConfig(t *testing.T) {
	c := defaultClientConfig()

	assert.Equal(t, "https://login.salesforce.com", c.loginURL)
	assert.Equal(t, "v61.0", c.apiVersion)
	assert.Equal(t, 55*time.Minute, c.tokenTTL)
	assert.Equal(t, 30*time.Second, c.timeout)
	assert.Equal(t, 3, c.retries)
	assert.Equal(t, time.Second, c.retryDelay)
	assert.Nil(t, c.limiter)
}

func TestWithRateLimit(t *testing.T) {
	c := defaultClientConfig()
	WithRateLimit(25, 5)(c)

	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(25), c.limiter.Limit())
	assert.Equal(t, 5, c.limiter.Burst())
}

func TestRequestOptions(t *testing.T) {
	c := &requestConfig{}
	WithRequestRetries(1)(c)
	WithHeader("Sforce-Auto-Assign", "FALSE")(c)
	WithHeader("Sforce-Call-Options", "client=forcekit")(c)

	require.NotNil(t, c.retries)
	assert.Equal(t, 1, *c.retries)
	assert.Equal(t, "FALSE", c.header.Get("Sforce-Auto-Assign"))
	assert.Equal(t, "client=forcekit", c.header.Get("Sforce-Call-Options"))
}

func TestWithHTTPClient_UsedForExchangeAndCalls(t *testing.T) {
	org := newFakeOrg(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		writeJSON(w, http.StatusOK, map[string]any{
			"DailyApiRequests": map[string]int{"Max": 15000, "Remaining": 14990},
		})
	})

	var calls int
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return http.DefaultTransport.RoundTrip(r)
	})
	client := newOrgClient(t, org,
		WithHTTPClient(&http.Client{Transport: transport}),
		WithLogger(hclog.NewNullLogger()),
		WithRateLimit(1000, 10),
	)

	limits, err := client.Limits(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 15000, limits["DailyApiRequests"].Max)
	assert.Equal(t, 10, limits["DailyApiRequests"].Used())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
