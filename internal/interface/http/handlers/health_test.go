package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/pkg/circuitbreaker"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedState circuitbreaker.State

func (s fixedState) State() circuitbreaker.State { return circuitbreaker.State(s) }

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("v1").Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)
	assert.Equal(t, "v1", status.Version)
}

func TestCompositeHealthChecker_AggregatesFailures(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.AddCheck("storage", NewStorageCheck(pingFunc(func(context.Context) error { return nil })))
	c.AddCheck("payment_gateway", NewBreakerCheck(fixedState(circuitbreaker.StateOpen)))
	c.AddCheck("relay", func(context.Context) error { return errors.New("unreachable") })

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: payment_gateway, relay", status.Message)
	assert.True(t, status.Checks["storage"].Healthy)
	assert.Equal(t, "circuit breaker is open", status.Checks["payment_gateway"].Message)

	c.RemoveCheck("payment_gateway")
	c.RemoveCheck("relay")
	assert.True(t, c.Check(context.Background()).Healthy)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", NewStorageCheck(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline exceeded")
}

func TestBreakerCheck_HalfOpenIsHealthy(t *testing.T) {
	assert.NoError(t, NewBreakerCheck(fixedState(circuitbreaker.StateHalfOpen))(context.Background()))
	assert.NoError(t, NewBreakerCheck(fixedState(circuitbreaker.StateClosed))(context.Background()))
}

func TestMiddlewares(t *testing.T) {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := ChainHandler(final, SecurityHeadersMiddleware, NoCacheMiddleware, RequestSizeLimitMiddleware(8))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.ContentLength = 1024
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
