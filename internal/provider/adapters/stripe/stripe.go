package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tipwave/tipwave/internal/provider/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Adapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 12 * time.Second},
	}, nil
}

// Adapter bills platform fees through Stripe invoices. Money movement
// between accounts is not part of the Stripe surface we use; those
// operations report ErrNotSupported.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type invoiceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) CreateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return nil, domain.ErrNotSupported
}

func (a *Adapter) CreateInvoice(ctx context.Context, req domain.InvoiceRequest) (*domain.InvoiceResult, error) {
	if strings.TrimSpace(req.AccountRef) == "" {
		return nil, domain.ErrInvalidConfig
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	form := url.Values{}
	form.Set("customer", req.AccountRef)
	form.Set("collection_method", "charge_automatically")
	form.Set("auto_advance", "false")
	form.Set("currency", currency)
	if req.Memo != "" {
		form.Set("description", req.Memo)
	}
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var invoice invoiceResponse
	if err := a.doForm(ctx, "/v1/invoices", form, req.IdempotencyKey, &invoice); err != nil {
		return nil, err
	}

	item := url.Values{}
	item.Set("customer", req.AccountRef)
	item.Set("invoice", invoice.ID)
	item.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	item.Set("currency", currency)
	if req.Memo != "" {
		item.Set("description", req.Memo)
	}
	itemKey := ""
	if req.IdempotencyKey != "" {
		itemKey = req.IdempotencyKey + "-item"
	}
	if err := a.doForm(ctx, "/v1/invoiceitems", item, itemKey, nil); err != nil {
		return nil, err
	}

	return &domain.InvoiceResult{InvoiceID: invoice.ID, Status: invoice.Status}, nil
}

func (a *Adapter) CollectInvoice(ctx context.Context, invoiceID string, paymentMethodID string) error {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.ErrInvalidConfig
	}
	form := url.Values{}
	if paymentMethodID != "" {
		form.Set("payment_method", paymentMethodID)
	}
	return a.doForm(ctx, "/v1/invoices/"+invoiceID+"/pay", form, "", nil)
}

func (a *Adapter) FetchAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return nil, domain.ErrNotSupported
}

func (a *Adapter) VerifyCapabilities(ctx context.Context, accountID string, required []string) (bool, error) {
	return false, domain.ErrNotSupported
}

func (a *Adapter) ListPaymentMethods(ctx context.Context, ownerType string, ownerID string) ([]domain.PaymentMethod, error) {
	return nil, domain.ErrNotSupported
}

func (a *Adapter) doForm(ctx context.Context, path string, form url.Values, idempotencyKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var provErr errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&provErr); err == nil && provErr.Error.Message != "" {
			return fmt.Errorf("%w: %s", domain.ErrRequestFailed, provErr.Error.Message)
		}
		return fmt.Errorf("%w: status %d", domain.ErrRequestFailed, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
