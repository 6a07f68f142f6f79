// Package command contains write operations that span more than one
// domain service.
package command

import (
	"context"
	"strings"
	"sync"

	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/entitlement"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURCHASE COMMAND
// Charges the payer through the configured provider and grants the SKU
// once the provider confirms the payment.
// ══════════════════════════════════════════════════════════════════════════════

// PurchaseCommand contains the data to buy one SKU.
type PurchaseCommand struct {
	// UserID is the learner who receives the entitlement.
	UserID string

	// SkuID is the SKU being bought.
	SkuID string

	// Payer identifies the paying wallet or key. Required.
	Payer string
}

// Validate validates the command.
func (c PurchaseCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.NewDomainError("payment", "Purchase", shared.ErrInvalidInput, "user_id is required")
	}
	if strings.TrimSpace(c.SkuID) == "" {
		return shared.NewDomainError("payment", "Purchase", shared.ErrInvalidInput, "sku_id is required")
	}
	return nil
}

// PurchaseResult contains the result of a purchase.
type PurchaseResult struct {
	SkuID string `json:"skuId"`

	// Granted is true when this call created the entitlement.
	Granted bool `json:"granted"`

	// AlreadyOwned is true when the SKU was owned before; nothing was charged.
	AlreadyOwned bool `json:"alreadyOwned"`

	ReceiptID  string `json:"receiptId,omitempty"`
	Provider   string `json:"provider,omitempty"`
	AmountSats int    `json:"amountSats"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PurchaseHandler handles the PurchaseCommand.
type PurchaseHandler struct {
	accounts  *account.Registry
	provider  payment.Provider
	publisher shared.EventPublisher
	log       *logger.Logger

	wg sync.WaitGroup
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(
	accounts *account.Registry,
	provider payment.Provider,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *PurchaseHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &PurchaseHandler{
		accounts:  accounts,
		provider:  provider,
		publisher: publisher,
		log:       log.With(logger.Component("purchase")),
	}
}

// Handle runs the purchase synchronously. A declined payment is returned
// as *payment.Failure together with a result that carries no grant.
func (h *PurchaseHandler) Handle(ctx context.Context, cmd PurchaseCommand) (*PurchaseResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sku, err := h.lookup(cmd.SkuID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.Payer) == "" {
		return nil, shared.ErrPayerRequired
	}

	result := &PurchaseResult{SkuID: sku.ID, Provider: h.provider.Name(), AmountSats: sku.PriceSats}
	log := h.log.With(logger.UserID(cmd.UserID), logger.SkuID(sku.ID))

	owned := false
	err = h.accounts.With(ctx, cmd.UserID, func(a *account.Account) error {
		owned = a.Entitlements().Covers(sku.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if owned {
		log.Info("access already owned, payment skipped")
		result.AlreadyOwned = true
		return result, nil
	}

	req := payment.Request{
		AmountSats: sku.PriceSats,
		SkuID:      sku.ID,
		Memo:       "Unlock " + sku.DisplayName,
		Payer:      cmd.Payer,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The account lock is not held while the provider works.
	paid, err := h.provider.Pay(ctx, req)
	if err != nil {
		log.Error("payment provider call failed", logger.Err(err))
		return nil, shared.WrapError("payment", "Purchase", shared.ErrExternalService, "payment provider call failed", err)
	}
	if !paid.OK {
		failure := &payment.Failure{Provider: h.provider.Name(), Message: paid.Error}
		log.Warn("payment declined", logger.String("reason", paid.Error))
		h.publishFailure(cmd.UserID, sku.ID, failure)
		return result, failure
	}
	result.ReceiptID = paid.ReceiptID

	err = h.accounts.With(ctx, cmd.UserID, func(a *account.Account) error {
		granted, err := a.Entitlements().Grant(ctx, sku.ID, entitlement.Source(h.provider.Name()), paid.ReceiptID)
		result.Granted = granted
		result.AlreadyOwned = !granted
		return err
	})
	if err != nil {
		log.Error("grant after payment failed",
			logger.String("receipt_id", paid.ReceiptID),
			logger.Err(err),
		)
		return nil, err
	}

	log.Info("purchase completed",
		logger.String("receipt_id", paid.ReceiptID),
		logger.Int("amount_sats", sku.PriceSats),
	)
	return result, nil
}

// HandleAsync runs Handle on its own goroutine and reports through done.
func (h *PurchaseHandler) HandleAsync(ctx context.Context, cmd PurchaseCommand, done func(*PurchaseResult, error)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res, err := h.Handle(ctx, cmd)
		if done != nil {
			done(res, err)
		}
	}()
}

// Wait blocks until every HandleAsync call has reported.
func (h *PurchaseHandler) Wait() {
	h.wg.Wait()
}

// Drain is Wait bounded by ctx. Purchases still pending when ctx ends keep
// running; their grants land if the process lives long enough.
func (h *PurchaseHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.log.Warn("pending purchases outlived shutdown", logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (h *PurchaseHandler) lookup(skuID string) (catalog.SKU, error) {
	sku, ok := h.accounts.Catalog().SKUByID(skuID)
	if !ok {
		return catalog.SKU{}, shared.ErrSKUNotFound
	}
	if !sku.Purchasable() {
		return catalog.SKU{}, shared.ErrSKUNotPurchasable
	}
	return sku, nil
}

func (h *PurchaseHandler) publishFailure(userID, skuID string, f *payment.Failure) {
	event := shared.PaymentFailedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPaymentFailed, userID, h.accounts.Calendar().Now()),
		SkuID:     skuID,
		Provider:  f.Provider,
		Message:   f.Message,
	}
	if err := h.publisher.Publish(event); err != nil {
		h.log.Warn("publish payment failure", logger.Err(err))
	}
}
