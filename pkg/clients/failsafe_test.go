package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicyNegativeRetriesMeansSingleAttempt(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPExecutorConfig{MaxRetries: -3})

	var attempts int32
	_, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicyRetriesUpToLimit(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	})

	var attempts int32
	_, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return &http.Response{StatusCode: http.StatusServiceUnavailable}, nil
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		resp *http.Response
		err  error
		want bool
	}{
		{"network error", nil, errors.New("reset"), true},
		{"cancelled", nil, context.Canceled, false},
		{"rate limited", &http.Response{StatusCode: http.StatusTooManyRequests}, nil, true},
		{"bad request", &http.Response{StatusCode: http.StatusBadRequest}, nil, false},
		{"ok", &http.Response{StatusCode: http.StatusOK}, nil, false},
	}
	for _, tc := range cases {
		if got := DefaultShouldRetry(tc.resp, tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestNewHTTPExecutorBreakerOpensAfterFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(HTTPExecutorConfig{
		MaxRetries: 0,
		Breaker:    &BreakerConfig{Name: "test", FailureThreshold: 2, FailureWindow: 2, Delay: time.Minute},
	})
	client := NewHTTPClient(time.Second)

	for i := 0; i < 2; i++ {
		resp, _ := ExecuteHTTP(context.Background(), exec, func() (*http.Response, error) {
			return client.Get(srv.URL)
		})
		if resp != nil {
			_ = resp.Body.Close()
		}
	}

	_, err := ExecuteHTTP(context.Background(), exec, func() (*http.Response, error) {
		return client.Get(srv.URL)
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected breaker to short-circuit the third call, server saw %d", got)
	}
}
