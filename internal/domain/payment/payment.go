// Package payment описывает контракт внешнего платёжного провайдера.
//
// Ядро не знает, как устроена сеть платежей: провайдер получает сумму,
// SKU, текст и плательщика и возвращает либо квитанцию, либо текст ошибки,
// который показывается пользователю как есть.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
)

// Request - запрос на оплату.
type Request struct {
	AmountSats int    `json:"amountSats"`
	SkuID      string `json:"skuId"`
	Memo       string `json:"memo"`
	Payer      string `json:"payer"`
}

// Validate проверяет обязательные поля.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Payer) == "":
		return shared.ErrPayerRequired
	case r.AmountSats <= 0:
		return shared.NewDomainError("payment", "Validate", shared.ErrInvalidInput, "amount must be positive")
	case strings.TrimSpace(r.SkuID) == "":
		return shared.NewDomainError("payment", "Validate", shared.ErrInvalidInput, "sku id is required")
	}
	return nil
}

// Result - ответ провайдера. При OK == false Error содержит текст для
// пользователя.
type Result struct {
	OK        bool   `json:"ok"`
	ReceiptID string `json:"receiptId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Provider - внешний платёжный провайдер.
type Provider interface {
	// Name попадает в поле Source выданного доступа.
	Name() string
	Pay(ctx context.Context, req Request) (Result, error)
}

// Failure - платёж не прошёл. Message показывается пользователю без
// изменений.
type Failure struct {
	Provider string
	Message  string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("payment via %s failed: %s", f.Provider, f.Message)
}

// Is позволяет сравнивать с shared.ErrPaymentFailed.
func (f *Failure) Is(target error) bool {
	return target == shared.ErrPaymentFailed
}
