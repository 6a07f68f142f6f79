package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
)

// DefaultSimulatedDelay mimics wallet confirmation time.
const DefaultSimulatedDelay = 1500 * time.Millisecond

// SimulatedProvider confirms every valid zap after a delay with a receipt
// of the form mock-zap-{unix millis}.
type SimulatedProvider struct {
	zap   ZapConfig
	delay time.Duration
	now   func() time.Time
	log   *logger.Logger
}

// NewSimulatedProvider creates a simulated provider. A negative delay is
// treated as zero.
func NewSimulatedProvider(zap ZapConfig, delay time.Duration, log *logger.Logger) *SimulatedProvider {
	if log == nil {
		log = logger.Default()
	}
	return &SimulatedProvider{
		zap:   zap,
		delay: max(delay, 0),
		now:   time.Now,
		log:   log.With(logger.Component("simulated_zap")),
	}
}

// Name implements payment.Provider.
func (p *SimulatedProvider) Name() string { return ProviderName }

// Pay implements payment.Provider.
func (p *SimulatedProvider) Pay(ctx context.Context, req payment.Request) (payment.Result, error) {
	if err := req.Validate(); err != nil {
		return payment.Result{OK: false, Error: err.Error()}, nil
	}

	zap := BuildZapRequest(p.zap, req, p.now())
	p.log.Debug("simulated zap request",
		logger.SkuID(req.SkuID),
		logger.Int("amount_sats", req.AmountSats),
		logger.Any("tags", zap.Tags),
	)

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return payment.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	return payment.Result{OK: true, ReceiptID: fmt.Sprintf("mock-zap-%d", p.now().UnixMilli())}, nil
}
