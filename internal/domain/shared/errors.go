// Package shared содержит общие для всех доменов ZapTalk ошибки и события.
// Пакет не имеет внешних зависимостей.
package shared

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Проверяются через errors.Is().
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidID    = errors.New("invalid ID")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorage - долговременное хранилище не подтвердило запись или чтение.
	ErrStorage = errors.New("storage failure")
	// ErrUnsupportedVersion - сохранённая запись новее, чем умеет читать код.
	ErrUnsupportedVersion = errors.New("unsupported record version")

	ErrPaymentFailed      = errors.New("payment failed")
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError - ошибка с контекстом домена и операции.
type DomainError struct {
	Domain  string // "entitlement", "progression", "payment" ...
	Op      string // операция, например "Grant"
	Kind    error  // базовый вид для errors.Is()
	Message string
	Err     error // исходная причина, если есть
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is сопоставляет и вид ошибки, и исходную причину.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError создаёт ошибку без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError оборачивает причину err контекстом домена.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// StorageError оборачивает сбой репозитория.
func StorageError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStorage, "persist state", err)
}

// Ошибки покупок.
var (
	ErrPayerRequired      = NewDomainError("payment", "Purchase", ErrUnauthorized, "login required")
	ErrSKUNotFound        = NewDomainError("catalog", "FindSKU", ErrNotFound, "sku not found")
	ErrSKUNotPurchasable  = NewDomainError("payment", "Purchase", ErrInvalidInput, "sku has no price")
	ErrGatewayUnavailable = NewDomainError("payment", "Request", ErrServiceUnavailable, "payment gateway is unavailable")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsStorage(err error) bool  { return errors.Is(err, ErrStorage) }

// IsValidation - ошибка во входных данных вызывающего.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidID)
}

// IsExternalService - сбой внешнего сервиса (платёжного шлюза).
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
