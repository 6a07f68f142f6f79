package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/circuitbreaker"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
)

var testZap = ZapConfig{AppPubkey: "apppub", Relays: []string{"wss://relay.one", "wss://relay.two"}}

func testRequest() payment.Request {
	return payment.Request{AmountSats: 2000, SkuID: "sku-lesson-A1-L02", Memo: "Unlock Basic Greetings", Payer: "npub1payer"}
}

func TestBuildZapRequest(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	z := BuildZapRequest(testZap, testRequest(), at)

	assert.Equal(t, KindZapRequest, z.Kind)
	assert.Equal(t, int64(1_700_000_000), z.CreatedAt)
	assert.Equal(t, "Unlock Basic Greetings", z.Content)
	assert.Equal(t, []string{"relays", "wss://relay.one", "wss://relay.two"}, z.Tags[0])

	for name, want := range map[string]string{
		"amount": "2000",
		"p":      "apppub",
		"t":      "zaptalk",
		"sku":    "sku-lesson-A1-L02",
		"user":   "npub1payer",
	} {
		got, ok := z.Tag(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := z.Tag("missing")
	assert.False(t, ok)
}

func newGateway(t *testing.T, h http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewGatewayClient(GatewayConfig{BaseURL: srv.URL + "/", Zap: testZap, Timeout: time.Second, Logger: logger.Nop()})
	require.NoError(t, err)
	return c
}

func TestGatewayClient_Success(t *testing.T) {
	var got zapBody
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/zaps", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"eventId":"evt-123"}`))
	})

	res, err := c.Pay(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, payment.Result{OK: true, ReceiptID: "evt-123"}, res)
	assert.Equal(t, "nostr-zap", c.Name())

	assert.Equal(t, 2000, got.AmountSats)
	assert.Equal(t, "npub1payer", got.Payer)
	sku, _ := got.ZapRequest.Tag("sku")
	assert.Equal(t, "sku-lesson-A1-L02", sku)
}

func TestGatewayClient_Declined(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"ok":false,"error":"Insufficient balance"}`))
	})

	for i := 0; i < 5; i++ {
		res, err := c.Pay(context.Background(), testRequest())
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, "Insufficient balance", res.Error)
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.Breaker().State(), "declines do not trip the breaker")
}

func TestGatewayClient_DeclinedWithoutMessage(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false}`))
	})

	res, err := c.Pay(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}

func TestGatewayClient_ServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream wallet offline", http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, err := c.Pay(context.Background(), testRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.Breaker().State())

	_, err := c.Pay(context.Background(), testRequest())
	assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGatewayClient_InvalidRequest(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called")
	})

	req := testRequest()
	req.Payer = ""
	_, err := c.Pay(context.Background(), req)
	assert.ErrorIs(t, err, shared.ErrPayerRequired)
}

func TestNewGatewayClient_RequiresURL(t *testing.T) {
	_, err := NewGatewayClient(GatewayConfig{})
	assert.Error(t, err)
}

func TestSimulatedProvider(t *testing.T) {
	p := NewSimulatedProvider(testZap, 0, logger.Nop())
	p.now = func() time.Time { return time.UnixMilli(1_741_600_000_123) }

	res, err := p.Pay(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "mock-zap-1741600000123", res.ReceiptID)
	assert.Equal(t, ProviderName, p.Name())
}

func TestSimulatedProvider_InvalidRequestIsDeclined(t *testing.T) {
	p := NewSimulatedProvider(testZap, 0, logger.Nop())
	req := testRequest()
	req.Payer = ""

	res, err := p.Pay(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, strings.Contains(res.Error, "login required"))
}

func TestSimulatedProvider_ContextCancelled(t *testing.T) {
	p := NewSimulatedProvider(testZap, time.Minute, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Pay(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
