// Package providertest provides an in-memory payment provider for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/tipwave/tipwave/internal/provider/domain"
)

// Fake implements domain.Adapter with scripted results. The zero value
// succeeds every call and synthesizes transfer and invoice IDs.
type Fake struct {
	mu sync.Mutex

	TransferErr   error
	TransferState string
	InvoiceErr    error
	CollectErr    error
	AccountErr    error
	Capabilities  []string
	Methods       []domain.PaymentMethod

	Transfers []domain.TransferRequest
	Invoices  []domain.InvoiceRequest
	Collected []string
}

func (f *Fake) CreateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return nil, f.TransferErr
	}
	f.Transfers = append(f.Transfers, req)
	status := f.TransferState
	if status == "" {
		status = "pending"
	}
	return &domain.TransferResult{
		TransferID: fmt.Sprintf("fake-transfer-%d", len(f.Transfers)),
		Status:     status,
	}, nil
}

func (f *Fake) CreateInvoice(ctx context.Context, req domain.InvoiceRequest) (*domain.InvoiceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InvoiceErr != nil {
		return nil, f.InvoiceErr
	}
	f.Invoices = append(f.Invoices, req)
	return &domain.InvoiceResult{
		InvoiceID: fmt.Sprintf("fake-invoice-%d", len(f.Invoices)),
		Status:    "open",
	}, nil
}

func (f *Fake) CollectInvoice(ctx context.Context, invoiceID string, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CollectErr != nil {
		return f.CollectErr
	}
	f.Collected = append(f.Collected, invoiceID)
	return nil
}

func (f *Fake) FetchAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AccountErr != nil {
		return nil, f.AccountErr
	}
	return &domain.Account{ID: accountID, Status: "enabled", Capabilities: f.Capabilities}, nil
}

func (f *Fake) VerifyCapabilities(ctx context.Context, accountID string, required []string) (bool, error) {
	account, err := f.FetchAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, capability := range required {
		if !account.HasCapability(capability) {
			return false, nil
		}
	}
	return true, nil
}

func (f *Fake) ListPaymentMethods(ctx context.Context, ownerType string, ownerID string) ([]domain.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PaymentMethod(nil), f.Methods...), nil
}

// TransferCount reports how many transfers the fake accepted.
func (f *Fake) TransferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Transfers)
}

var _ domain.Adapter = (*Fake)(nil)
