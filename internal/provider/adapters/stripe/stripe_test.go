package stripe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tipwave/tipwave/internal/provider/adapters/stripe"
	"github.com/tipwave/tipwave/internal/provider/domain"
)

type recordedRequest struct {
	path string
	idem string
	form map[string]string
}

func newAdapter(t *testing.T, baseURL string) domain.Adapter {
	t.Helper()
	adapter, err := stripe.NewFactory().NewAdapter(domain.AdapterConfig{
		APIKey:  "sk_test",
		BaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestCreateInvoice(t *testing.T) {
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		requests = append(requests, recordedRequest{
			path: r.URL.Path,
			idem: r.Header.Get("Idempotency-Key"),
			form: form,
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"in_123","status":"draft"}`))
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	result, err := adapter.CreateInvoice(context.Background(), domain.InvoiceRequest{
		AccountRef:     "cus_1",
		AmountCents:    9900,
		Currency:       "USD",
		Memo:           "Platform fee 2024-06",
		IdempotencyKey: "monthly-invoice-1-2024-06",
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if result.InvoiceID != "in_123" {
		t.Fatalf("invoice id = %q", result.InvoiceID)
	}

	if len(requests) != 2 {
		t.Fatalf("requests = %d, want invoice then invoice item", len(requests))
	}
	invoice := requests[0]
	if invoice.path != "/v1/invoices" {
		t.Fatalf("first path = %q", invoice.path)
	}
	if invoice.form["customer"] != "cus_1" || invoice.form["collection_method"] != "charge_automatically" {
		t.Fatalf("invoice form = %v", invoice.form)
	}
	if invoice.idem != "monthly-invoice-1-2024-06" {
		t.Fatalf("invoice idempotency key = %q", invoice.idem)
	}
	item := requests[1]
	if item.path != "/v1/invoiceitems" {
		t.Fatalf("second path = %q", item.path)
	}
	if item.form["invoice"] != "in_123" || item.form["amount"] != "9900" || item.form["currency"] != "usd" {
		t.Fatalf("item form = %v", item.form)
	}
	if item.idem != "monthly-invoice-1-2024-06-item" {
		t.Fatalf("item idempotency key = %q", item.idem)
	}
}

func TestCollectInvoice(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotPath = r.URL.Path
		gotMethod = r.PostForm.Get("payment_method")
		_, _ = w.Write([]byte(`{"id":"in_123","status":"paid"}`))
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	if err := adapter.CollectInvoice(context.Background(), "in_123", "pm_1"); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if gotPath != "/v1/invoices/in_123/pay" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotMethod != "pm_1" {
		t.Fatalf("payment_method = %q", gotMethod)
	}
}

func TestCollectInvoiceDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	err := adapter.CollectInvoice(context.Background(), "in_123", "pm_1")
	if !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
}

func TestMoneyMovementNotSupported(t *testing.T) {
	adapter := newAdapter(t, "https://example.invalid")
	if _, err := adapter.CreateTransfer(context.Background(), domain.TransferRequest{}); !errors.Is(err, domain.ErrNotSupported) {
		t.Fatalf("err = %v, want ErrNotSupported", err)
	}
	if _, err := adapter.FetchAccount(context.Background(), "acct"); !errors.Is(err, domain.ErrNotSupported) {
		t.Fatalf("err = %v, want ErrNotSupported", err)
	}
}
