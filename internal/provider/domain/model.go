package domain

import (
	"context"
	"errors"
	"time"
)

const (
	CapabilitySendFunds    = "send-funds"
	CapabilityReceiveFunds = "receive-funds"
)

// Payment method types eligible for the instant rail.
const (
	MethodTypeRTP       = "rtp"
	MethodTypeRTPBank   = "rtp_bank"
	MethodTypeDebitCard = "debit_card"
)

type TransferRequest struct {
	Source         string
	Destination    string
	AmountCents    int64
	Currency       string
	Rail           string
	Metadata       map[string]string
	IdempotencyKey string
}

type TransferResult struct {
	TransferID string
	Status     string
}

type InvoiceRequest struct {
	AccountRef     string
	AmountCents    int64
	Currency       string
	Memo           string
	DueDate        time.Time
	Metadata       map[string]string
	IdempotencyKey string
}

type InvoiceResult struct {
	InvoiceID string
	Status    string
	DueDate   time.Time
}

type Account struct {
	ID           string
	Status       string
	Capabilities []string
}

func (a *Account) HasCapability(name string) bool {
	if a == nil {
		return false
	}
	for _, capability := range a.Capabilities {
		if capability == name {
			return true
		}
	}
	return false
}

type PaymentMethod struct {
	ID        string
	Type      string
	OwnerType string
	OwnerID   string
}

// Adapter is the boundary to a payment provider. Implementations that do
// not support an operation return ErrNotSupported.
type Adapter interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error)
	CollectInvoice(ctx context.Context, invoiceID string, paymentMethodID string) error
	FetchAccount(ctx context.Context, accountID string) (*Account, error)
	VerifyCapabilities(ctx context.Context, accountID string, required []string) (bool, error)
	ListPaymentMethods(ctx context.Context, ownerType string, ownerID string) ([]PaymentMethod, error)
}

type AdapterConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
	ErrNotSupported     = errors.New("operation_not_supported")
	ErrAccountNotFound  = errors.New("provider_account_not_found")
	ErrRequestFailed    = errors.New("provider_request_failed")
)
