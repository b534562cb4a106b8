package moov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tipwave/tipwave/internal/provider/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "moov"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.moov.io"
	}
	return &Adapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 12 * time.Second},
	}, nil
}

// Adapter moves funds over Moov transfers. Invoicing is not part of the
// Moov surface we use; those operations report ErrNotSupported.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type transferRequestBody struct {
	Source      paymentMethodRef  `json:"source"`
	Destination paymentMethodRef  `json:"destination"`
	Amount      amountBody        `json:"amount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type paymentMethodRef struct {
	PaymentMethodID string `json:"paymentMethodID"`
}

type amountBody struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

type transferResponse struct {
	TransferID string `json:"transferID"`
	Status     string `json:"status"`
}

type accountResponse struct {
	AccountID    string               `json:"accountID"`
	Status       string               `json:"status"`
	Capabilities []capabilityResponse `json:"capabilities"`
}

type capabilityResponse struct {
	Capability string `json:"capability"`
	Status     string `json:"status"`
}

type paymentMethodResponse struct {
	PaymentMethodID   string `json:"paymentMethodID"`
	PaymentMethodType string `json:"paymentMethodType"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *Adapter) CreateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, domain.ErrInvalidConfig
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	body := transferRequestBody{
		Source:      paymentMethodRef{PaymentMethodID: req.Source},
		Destination: paymentMethodRef{PaymentMethodID: req.Destination},
		Amount:      amountBody{Value: req.AmountCents, Currency: currency},
		Metadata:    req.Metadata,
	}

	var out transferResponse
	if err := a.doJSON(ctx, http.MethodPost, "/transfers", body, req.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.TransferID) == "" {
		return nil, domain.ErrRequestFailed
	}
	return &domain.TransferResult{TransferID: out.TransferID, Status: out.Status}, nil
}

func (a *Adapter) CreateInvoice(ctx context.Context, req domain.InvoiceRequest) (*domain.InvoiceResult, error) {
	return nil, domain.ErrNotSupported
}

func (a *Adapter) CollectInvoice(ctx context.Context, invoiceID string, paymentMethodID string) error {
	return domain.ErrNotSupported
}

func (a *Adapter) FetchAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, domain.ErrAccountNotFound
	}

	var out accountResponse
	if err := a.doJSON(ctx, http.MethodGet, "/accounts/"+accountID, nil, "", &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccountID) == "" {
		return nil, domain.ErrAccountNotFound
	}

	account := &domain.Account{ID: out.AccountID, Status: out.Status}
	for _, capability := range out.Capabilities {
		if strings.EqualFold(capability.Status, "enabled") {
			account.Capabilities = append(account.Capabilities, capability.Capability)
		}
	}
	return account, nil
}

func (a *Adapter) VerifyCapabilities(ctx context.Context, accountID string, required []string) (bool, error) {
	account, err := a.FetchAccount(ctx, accountID)
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

func (a *Adapter) ListPaymentMethods(ctx context.Context, ownerType string, ownerID string) ([]domain.PaymentMethod, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrAccountNotFound
	}

	var out []paymentMethodResponse
	if err := a.doJSON(ctx, http.MethodGet, "/accounts/"+ownerID+"/payment-methods", nil, "", &out); err != nil {
		return nil, err
	}

	methods := make([]domain.PaymentMethod, 0, len(out))
	for _, method := range out {
		methods = append(methods, domain.PaymentMethod{
			ID:        method.PaymentMethodID,
			Type:      method.PaymentMethodType,
			OwnerType: ownerType,
			OwnerID:   ownerID,
		})
	}
	return methods, nil
}

func (a *Adapter) doJSON(ctx context.Context, method string, path string, body any, idempotencyKey string, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrAccountNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var provErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&provErr); err == nil && provErr.Error != "" {
			return fmt.Errorf("%w: %s", domain.ErrRequestFailed, provErr.Error)
		}
		return fmt.Errorf("%w: status %d", domain.ErrRequestFailed, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
