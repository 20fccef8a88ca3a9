package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scwf/prod-scout/internal/domain"
	pkgerrors "github.com/scwf/prod-scout/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
	}
}

const userByScreenNameOK = `{"data":{"user":{"result":{"__typename":"User","rest_id":"123456"}}}}`

func newTestClient(t *testing.T, cfg ClientConfig, creds []*domain.Credential, transport http.RoundTripper) (*Client, *CredentialPool) {
	t.Helper()
	pool := NewCredentialPool(creds, testLogger())
	cfg.Transport = transport
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return NewClient(pool, cfg, testLogger()), pool
}

func TestGetUserIDReturnsRestID(t *testing.T) {
	creds := []*domain.Credential{{AuthToken: "a", CSRFToken: "b"}}
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, userByScreenNameOK, nil), nil
	})
	client, _ := newTestClient(t, ClientConfig{}, creds, transport)

	id, err := client.GetUserID(context.Background(), "someuser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "123456" {
		t.Errorf("got %q, want 123456", id)
	}
}

// property #7: a 429 with a Retry-After header sets the credential's
// cooldown to that many seconds, not the default cooldown. Two credentials
// and MaxRetries=1 keep this deterministic: attempt 1 consumes credential
// "a" (index 0 in Status), attempt 2 consumes "b", and retrying stops
// there, so neither call blocks waiting on a cooling pool.
func TestRequestWithRetryHonorsRetryAfterHeader(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, "{}", http.Header{"Retry-After": []string{"42"}}), nil
	})
	creds := []*domain.Credential{
		{AuthToken: "a", CSRFToken: "csrf-a"},
		{AuthToken: "b", CSRFToken: "csrf-b"},
	}
	client, pool := newTestClient(t, ClientConfig{MaxRetries: 1}, creds, transport)

	_, err := client.GetUserID(context.Background(), "someuser")
	if err == nil {
		t.Fatal("expected an error, all attempts were rate limited")
	}

	status := pool.Status()[0]
	wantMin := time.Now().Add(41 * time.Second).Unix()
	wantMax := time.Now().Add(43 * time.Second).Unix()
	if status.CooldownUntil < wantMin || status.CooldownUntil > wantMax {
		t.Errorf("cooldown_until = %d, want within [%d, %d] (Retry-After: 42)", status.CooldownUntil, wantMin, wantMax)
	}
}

// E1: a 401 disables the credential rather than cooling it down.
func TestRequestWithRetryDisablesCredentialOn401(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, "{}", nil), nil
	})
	creds := []*domain.Credential{{AuthToken: "a", CSRFToken: "b"}}
	client, pool := newTestClient(t, ClientConfig{MaxRetries: 1}, creds, transport)

	_, err := client.GetUserID(context.Background(), "someuser")
	if err == nil {
		t.Fatal("expected an error")
	}
	if pkgerrors.GetKind(err) != pkgerrors.KindAuthFailure && !strings.Contains(err.Error(), "AuthFailure") {
		t.Errorf("expected an AuthFailure-tagged error, got %v", err)
	}
	if !pool.Status()[0].IsDisabled {
		t.Error("expected the credential to be disabled after a 401")
	}
}

// E1 variant: a 403 is treated the same way as a 401.
func TestRequestWithRetryDisablesCredentialOn403(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, "{}", nil), nil
	})
	creds := []*domain.Credential{{AuthToken: "a", CSRFToken: "b"}}
	client, pool := newTestClient(t, ClientConfig{MaxRetries: 1}, creds, transport)

	_, err := client.GetUserID(context.Background(), "someuser")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !pool.Status()[0].IsDisabled {
		t.Error("expected the credential to be disabled after a 403")
	}
}

// E3: circuit_breaker_threshold consecutive failures trips the breaker and
// surfaces a CircuitOpen error, without exhausting further retries.
func TestRequestWithRetryTripsCircuitBreakerAfterThreshold(t *testing.T) {
	var calls int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusInternalServerError, "boom", nil), nil
	})
	creds := []*domain.Credential{{AuthToken: "a", CSRFToken: "b"}}
	client, _ := newTestClient(t, ClientConfig{MaxRetries: 10, CircuitBreakerThreshold: 2}, creds, transport)

	_, err := client.GetUserID(context.Background(), "someuser")
	if err == nil {
		t.Fatal("expected an error")
	}
	if pkgerrors.GetKind(err) != pkgerrors.KindCircuitOpen {
		t.Errorf("expected CircuitOpen, got kind %q (%v)", pkgerrors.GetKind(err), err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected exactly 2 requests before the breaker tripped, got %d", got)
	}
}

// A transient network error (not an HTTP status) is retried and can still
// succeed within MaxRetries.
func TestRequestWithRetrySucceedsAfterTransientNetworkError(t *testing.T) {
	var calls int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, fmt.Errorf("connection reset by peer")
		}
		return jsonResponse(http.StatusOK, userByScreenNameOK, nil), nil
	})
	creds := []*domain.Credential{{AuthToken: "a", CSRFToken: "b"}}
	client, _ := newTestClient(t, ClientConfig{MaxRetries: 2}, creds, transport)

	id, err := client.GetUserID(context.Background(), "someuser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "123456" {
		t.Errorf("got %q, want 123456", id)
	}
}

// E2: with two credentials, a 429 on one rotates to the other rather than
// failing the whole request.
func TestRequestWithRetryRotatesCredentialOnRateLimit(t *testing.T) {
	var calls int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return jsonResponse(http.StatusTooManyRequests, "{}", http.Header{"Retry-After": []string{"60"}}), nil
		}
		return jsonResponse(http.StatusOK, userByScreenNameOK, nil), nil
	})
	creds := []*domain.Credential{
		{AuthToken: "a", CSRFToken: "csrf-a"},
		{AuthToken: "b", CSRFToken: "csrf-b"},
	}
	client, pool := newTestClient(t, ClientConfig{MaxRetries: 2}, creds, transport)

	id, err := client.GetUserID(context.Background(), "someuser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "123456" {
		t.Errorf("got %q, want 123456", id)
	}

	statuses := pool.Status()
	cooling, notCooling := 0, 0
	for _, s := range statuses {
		if s.IsCooling {
			cooling++
		} else if s.RequestCount > 0 {
			notCooling++
		}
	}
	if cooling != 1 {
		t.Errorf("expected exactly one credential cooling down, got %d", cooling)
	}
}
