package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/forcekit/client-go/internal/apierrors"
	"github.com/forcekit/client-go/internal/auth"
)

// fakeTokens behaves like the authenticator's cache: a token is minted on
// the first call after construction or invalidation.
type fakeTokens struct {
	mu            sync.Mutex
	instanceURL   string
	current       string
	err           error
	exchanges     int32
	invalidations int32
}

func (f *fakeTokens) Token(ctx context.Context) (auth.CachedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return auth.CachedToken{}, f.err
	}
	if f.current == "" {
		n := atomic.AddInt32(&f.exchanges, 1)
		f.current = fmt.Sprintf("T%d", n)
	}
	return auth.CachedToken{
		AccessToken: f.current,
		InstanceURL: f.instanceURL,
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt32(&f.invalidations, 1)
	f.current = ""
}

type testEnv struct {
	server *httptest.Server
	tokens *fakeTokens
	client *Client
	calls  int32

	mu     sync.Mutex
	delays []time.Duration
}

func (e *testEnv) Calls() int32 {
	return atomic.LoadInt32(&e.calls)
}

func (e *testEnv) Delays() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.delays...)
}

// newTestEnv starts a resource server and a client pointed at it. Backoff
// waits are recorded instead of slept.
func newTestEnv(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, call int32), opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt32(&env.calls, 1)
		handler(w, r, call)
	}))
	t.Cleanup(env.server.Close)

	env.tokens = &fakeTokens{instanceURL: env.server.URL}
	client, err := New(env.tokens, opts...)
	require.NoError(t, err)
	client.sleep = func(ctx context.Context, d time.Duration) error {
		env.mu.Lock()
		env.delays = append(env.delays, d)
		env.mu.Unlock()
		return ctx.Err()
	}
	env.client = client
	return env
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	tokens := &fakeTokens{instanceURL: "https://x"}

	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(tokens, WithAPIVersion(""))
	assert.Error(t, err)

	_, err = New(tokens, WithTimeout(0))
	assert.Error(t, err)

	_, err = New(tokens, WithRetries(-1))
	assert.Error(t, err)

	c, err := New(tokens, WithAPIVersion("58.0"))
	require.NoError(t, err)
	assert.Equal(t, "v58.0", c.APIVersion())
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(&fakeTokens{})
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIVersion, c.apiVersion)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.Equal(t, DefaultMaxRetries, c.retry.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, c.retry.BaseDelay)
	assert.NotNil(t, c.httpClient)
	assert.NotNil(t, c.logger)
	assert.Nil(t, c.limiter)
}

func TestExecute_RequestShape(t *testing.T) {
	var gotPath, gotAuth, gotAccept, gotContentType, gotCustom string
	var gotBody map[string]any

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("Sforce-Auto-Assign")
		json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	var result struct{ OK bool }
	err := env.client.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/sobjects/Account/",
		Body:   map[string]string{"Name": "Acme"},
		Header: http.Header{"Sforce-Auto-Assign": []string{"FALSE"}},
	}, &result)
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, "/services/data/v61.0/sobjects/Account/", gotPath)
	assert.Equal(t, "Bearer T1", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "FALSE", gotCustom)
	assert.Equal(t, "Acme", gotBody["Name"])
}

func TestExecute_RelativePathWithoutSlash(t *testing.T) {
	var gotPath string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, env.client.Do(context.Background(), http.MethodGet, "limits/", nil, nil))
	assert.Equal(t, "/services/data/v61.0/limits/", gotPath)
}

func TestExecute_NoContentLeavesResultUntouched(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusOK} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
				w.WriteHeader(status)
			})

			result := map[string]any{"sentinel": true}
			require.NoError(t, env.client.Do(context.Background(), http.MethodDelete, "/sobjects/Account/001", nil, &result))
			assert.Equal(t, map[string]any{"sentinel": true}, result)
		})
	}
}

func TestExecute_RateLimitBackoffSequence(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `[{"message":"slow down","errorCode":"REQUEST_LIMIT_EXCEEDED"}]`)
	})

	err := env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil)

	var rlErr *apierrors.RateLimitError
	require.True(t, errors.As(err, &rlErr), "error = %v", err)
	assert.True(t, errors.Is(err, apierrors.ErrRateLimited))
	assert.Equal(t, 4, rlErr.Attempts)
	assert.Contains(t, rlErr.Body, "REQUEST_LIMIT_EXCEEDED")
	assert.Equal(t, int32(4), env.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, env.Delays())
}

func TestExecute_RateLimitThenSuccess(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, call int32) {
		if call == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"n": 7})
	})

	var result struct{ N int }
	require.NoError(t, env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, &result))
	assert.Equal(t, 7, result.N)
	assert.Equal(t, int32(2), env.Calls())
	assert.Equal(t, []time.Duration{time.Second}, env.Delays())
}

func TestExecute_UnauthorizedRefreshesToken(t *testing.T) {
	var auths []string
	var mu sync.Mutex

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, call int32) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		if call == 1 {
			writeJSON(w, http.StatusUnauthorized, []map[string]string{{"message": "Session expired or invalid", "errorCode": "INVALID_SESSION_ID"}})
			return
		}
		writeJSON(w, http.StatusOK, QueryResult{TotalSize: 0, Done: true, Records: []Record{}})
	})

	var result QueryResult
	require.NoError(t, env.client.Do(context.Background(), http.MethodGet, "/query/?q=SELECT+Id+FROM+Account", nil, &result))

	assert.Equal(t, int32(2), env.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.tokens.invalidations))
	assert.Equal(t, int32(2), atomic.LoadInt32(&env.tokens.exchanges))
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, auths)
	assert.Empty(t, env.Delays(), "401 retries do not wait")
}

func TestExecute_UnauthorizedExhausted(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "Session expired or invalid")
	})

	err := env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil)

	var authErr *apierrors.AuthenticationError
	require.True(t, errors.As(err, &authErr), "error = %v", err)
	assert.True(t, errors.Is(err, apierrors.ErrUnauthorized))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, "Session expired or invalid", authErr.Body)
	assert.Equal(t, int32(4), env.Calls())
	assert.Equal(t, int32(4), atomic.LoadInt32(&env.tokens.invalidations))
}

func TestExecute_UnauthorizedAdvancesSchedule(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, call int32) {
		switch call {
		case 1:
			w.WriteHeader(http.StatusUnauthorized)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	require.NoError(t, env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil))
	assert.Equal(t, []time.Duration{2 * time.Second}, env.Delays())
}

func TestExecute_ServerErrors(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		wantErr  bool
		calls    int32
	}{
		{"recovers after one failure", 1, false, 2},
		{"recovers on last retry", 3, false, 4},
		{"exhausted", 10, true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, call int32) {
				if call <= tt.failures {
					w.WriteHeader(http.StatusServiceUnavailable)
					io.WriteString(w, "maintenance")
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			err := env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil)
			assert.Equal(t, tt.calls, env.Calls())

			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var srvErr *apierrors.ServerError
			require.True(t, errors.As(err, &srvErr), "error = %v", err)
			assert.True(t, errors.Is(err, apierrors.ErrServerUnavailable))
			assert.Equal(t, http.StatusServiceUnavailable, srvErr.StatusCode)
			assert.Equal(t, "maintenance", srvErr.Body)
			assert.Equal(t, 4, srvErr.Attempts)
		})
	}
}

func TestExecute_AttemptTimeout(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond), WithRetries(1))

	err := env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil)

	var toErr *apierrors.TimeoutError
	require.True(t, errors.As(err, &toErr), "error = %v", err)
	assert.True(t, errors.Is(err, apierrors.ErrTimeout))
	assert.Equal(t, 2, toErr.Attempts)
	assert.Equal(t, 50*time.Millisecond, toErr.Timeout)
	assert.Equal(t, int32(2), env.Calls())
	assert.Equal(t, []time.Duration{time.Second}, env.Delays())
}

func TestExecute_APIErrorNotRetried(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
		notFound    bool
	}{
		{
			name:        "structured",
			status:      http.StatusBadRequest,
			body:        `[{"message":"unexpected token: FORM","errorCode":"MALFORMED_QUERY"}]`,
			wantCode:    "MALFORMED_QUERY",
			wantMessage: "MALFORMED_QUERY: unexpected token: FORM",
		},
		{
			name:        "malformed body",
			status:      http.StatusBadRequest,
			body:        `<html>bad gateway config</html>`,
			wantMessage: "<html>bad gateway config</html>",
		},
		{
			name:        "not found",
			status:      http.StatusNotFound,
			body:        `[{"message":"The requested resource does not exist","errorCode":"NOT_FOUND"}]`,
			wantCode:    "NOT_FOUND",
			wantMessage: "NOT_FOUND: The requested resource does not exist",
			notFound:    true,
		},
		{
			name:        "single object",
			status:      http.StatusForbidden,
			body:        `{"message":"insufficient access","errorCode":"INSUFFICIENT_ACCESS"}`,
			wantCode:    "INSUFFICIENT_ACCESS",
			wantMessage: "INSUFFICIENT_ACCESS: insufficient access",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			err := env.client.Do(context.Background(), http.MethodGet, "/sobjects/Account/001", nil, nil)

			var apiErr *apierrors.APIError
			require.True(t, errors.As(err, &apiErr), "error = %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode())
			assert.Equal(t, tt.wantMessage, apiErr.Message())
			assert.Equal(t, tt.body, apiErr.Body)
			assert.Equal(t, tt.notFound, errors.Is(err, apierrors.ErrNotFound))
			assert.Equal(t, int32(1), env.Calls())
			assert.Empty(t, env.Delays())
		})
	}
}

func TestExecute_InvalidJSONBody(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"totalSize":`)
	})

	var result QueryResult
	err := env.client.Do(context.Background(), http.MethodGet, "/query/?q=x", nil, &result)
	assert.True(t, errors.Is(err, apierrors.ErrInvalidResponse), "error = %v", err)
	assert.Equal(t, int32(1), env.Calls())
}

func TestExecute_ValidatesResult(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		writeJSON(w, http.StatusOK, map[string]any{"totalSize": -1, "done": true, "records": []any{}})
	})

	var result QueryResult
	err := env.client.Do(context.Background(), http.MethodGet, "/query/?q=x", nil, &result)

	var vErr *apierrors.ValidationError
	require.True(t, errors.As(err, &vErr), "error = %v", err)
	assert.Len(t, vErr.Errors, 1)
	assert.Contains(t, vErr.Errors[0], "totalSize")
}

func TestExecute_PerRequestRetries(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusBadGateway)
	})

	zero := 0
	err := env.client.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/limits/", Retries: &zero}, nil)
	assert.True(t, errors.Is(err, apierrors.ErrServerUnavailable))
	assert.Equal(t, int32(1), env.Calls())
	assert.Empty(t, env.Delays())
}

func TestExecute_TokenErrorNotRetried(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusNoContent)
	})
	env.tokens.err = &apierrors.AuthenticationError{StatusCode: 400, Code: "invalid_grant"}

	err := env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil)
	assert.True(t, errors.Is(err, apierrors.ErrUnauthorized))
	assert.Equal(t, int32(0), env.Calls())
}

func TestExecute_NetworkErrorNotRetried(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {})
	env.server.Close()

	err := env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil)

	var netErr *apierrors.NetworkError
	require.True(t, errors.As(err, &netErr), "error = %v", err)
	assert.Contains(t, netErr.URL, "/services/data/v61.0/limits/")
	assert.Equal(t, 1, netErr.Attempt)
	assert.Empty(t, env.Delays())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestExecute_NetworkErrorAfterRetryRecordsAttempt(t *testing.T) {
	var trips int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&trips, 1) == 1 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       io.NopCloser(strings.NewReader("")),
				Header:     make(http.Header),
				Request:    r,
			}, nil
		}
		return nil, errors.New("connection reset by peer")
	})
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {},
		WithHTTPClient(&http.Client{Transport: transport}))

	err := env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil)

	var netErr *apierrors.NetworkError
	require.True(t, errors.As(err, &netErr), "error = %v", err)
	assert.Equal(t, 2, netErr.Attempt)
	assert.Equal(t, int32(2), atomic.LoadInt32(&trips))
	assert.Equal(t, []time.Duration{time.Second}, env.Delays())
}

func TestExecute_ContextCanceledBeforeCall(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusNoContent)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.client.Do(ctx, http.MethodGet, "/limits/", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), env.Calls())
}

func TestExecute_ContextCanceledDuringBackoff(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	env.client.sleep = sleepContext
	env.client.retry.BaseDelay = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := env.client.Do(ctx, http.MethodGet, "/limits/", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), env.Calls())
}

func TestExecute_RateLimiter(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusNoContent)
	}, WithRateLimiter(limiter))

	require.NoError(t, env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := env.client.Do(ctx, http.MethodGet, "/limits/", nil, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), env.Calls(), "throttled call never reaches the server")
}

func TestExecute_ConcurrentCalls(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		writeJSON(w, http.StatusOK, map[string]int{"n": 1})
	})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var result struct{ N int }
			errs <- env.client.Do(context.Background(), http.MethodGet, "/limits/", nil, &result)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(20), env.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.tokens.exchanges))
}

func TestParseErrorResponse(t *testing.T) {
	err := parseErrorResponse(400, []byte(`[{"message":"Required fields are missing: [Name]","errorCode":"REQUIRED_FIELD_MISSING","fields":["Name"]}]`))

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Len(t, apiErr.Details, 1)
	assert.Equal(t, []string{"Name"}, apiErr.Details[0].Fields)

	err = parseErrorResponse(400, []byte(`[]`))
	require.True(t, errors.As(err, &apiErr))
	assert.Empty(t, apiErr.Details)
	assert.Equal(t, "[]", apiErr.Message())
}
