package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/circuitbreaker"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// GatewayConfig contains configuration for the zap gateway client.
type GatewayConfig struct {
	// BaseURL is the gateway base URL, e.g. "https://pay.zaptalk.app".
	BaseURL string

	// Zap carries the recipient pubkey and relays.
	Zap ZapConfig

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// GatewayClient sends zap requests to the payment gateway. Transport
// errors and 5xx responses trip the circuit breaker; a declined payment
// does not.
type GatewayClient struct {
	config     GatewayConfig
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
	now        func() time.Time
}

// NewGatewayClient creates a new gateway client.
func NewGatewayClient(config GatewayConfig) (*GatewayClient, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, errors.New("payments: gateway base url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	log := config.Logger.With(logger.Component("zap_gateway"))
	breaker := circuitbreaker.PaymentGatewayBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})

	return &GatewayClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    breaker,
		log:        log,
		now:        time.Now,
	}, nil
}

// Name implements payment.Provider.
func (c *GatewayClient) Name() string { return ProviderName }

// Breaker exposes the circuit breaker for health reporting.
func (c *GatewayClient) Breaker() *circuitbreaker.CircuitBreaker { return c.breaker }

type zapBody struct {
	ZapRequest ZapRequest `json:"zapRequest"`
	AmountSats int        `json:"amountSats"`
	Payer      string     `json:"payer"`
}

type zapResponse struct {
	OK      bool   `json:"ok"`
	EventID string `json:"eventId"`
	Error   string `json:"error"`
}

// statusError is a gateway response that counts as a gateway failure.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Body)
}

// Pay implements payment.Provider.
func (c *GatewayClient) Pay(ctx context.Context, req payment.Request) (payment.Result, error) {
	if err := req.Validate(); err != nil {
		return payment.Result{}, err
	}

	body := zapBody{
		ZapRequest: BuildZapRequest(c.config.Zap, req, c.now()),
		AmountSats: req.AmountSats,
		Payer:      req.Payer,
	}

	var out zapResponse
	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/v1/zaps", body, &out)
	})
	latency := time.Since(start)

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return payment.Result{}, shared.ErrGatewayUnavailable
	case err != nil:
		c.log.Error("zap request failed", logger.SkuID(req.SkuID), logger.Latency(latency), logger.Err(err))
		return payment.Result{}, fmt.Errorf("payments: zap gateway: %w", err)
	}

	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = "Payment was not completed"
		}
		c.log.Info("zap declined", logger.SkuID(req.SkuID), logger.String("reason", msg))
		return payment.Result{OK: false, Error: msg}, nil
	}

	c.log.Info("zap confirmed",
		logger.SkuID(req.SkuID),
		logger.String("event_id", out.EventID),
		logger.Latency(latency),
	)
	return payment.Result{OK: true, ReceiptID: out.EventID}, nil
}

// post sends body as JSON. 4xx answers carrying a JSON error are decoded
// into out as declines; other non-2xx answers are errors.
func (c *GatewayClient) post(ctx context.Context, path string, body any, out *zapResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if err := json.Unmarshal(respBody, out); err == nil && out.Error != "" {
			out.OK = false
			return nil
		}
	}
	return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
}
