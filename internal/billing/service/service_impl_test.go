package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingrepo "github.com/tipwave/tipwave/internal/billing/repository"
	billingservice "github.com/tipwave/tipwave/internal/billing/service"
	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/idempotency"
	"github.com/tipwave/tipwave/internal/provider"
	"github.com/tipwave/tipwave/internal/provider/providertest"
	restaurantrepo "github.com/tipwave/tipwave/internal/restaurant/repository"
	"github.com/tipwave/tipwave/internal/testdb"
)

type billingFixture struct {
	db    *gorm.DB
	fake  *providertest.Fake
	clock *clock.FakeClock
	svc   *billingservice.Service
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	db := testdb.Open(t)
	node, err := snowflake.NewNode(13)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	// The 15th, matching the seeded billing day.
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC))
	fake := &providertest.Fake{}

	guard := idempotency.NewGuard(idempotency.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
	})
	svc := billingservice.NewService(billingservice.Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          fakeClock,
		Guard:          guard,
		Adapters:       &provider.Adapters{Payout: fake, Billing: fake},
		RestaurantRepo: restaurantrepo.Provide(),
		ChargeRepo:     billingrepo.Provide(),
	})
	return &billingFixture{db: db, fake: fake, clock: fakeClock, svc: svc}
}

func (f *billingFixture) seedRestaurant(t *testing.T, id int64, monthlyFee int64, billingDay int, customerID string) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO restaurants (
			id, name, timezone, fee_payer, payout_fee_cents, instant_threshold_cents,
			instant_fee_cents, ach_fee_cents, monthly_fee_cents, billing_day,
			provider_account_id, billing_customer_id, debit_method_id, billing_method_id,
			created_at, updated_at
		) VALUES (?, ?, 'UTC', 'restaurant', 100, 5200, 25, 0, ?, ?, 'acct-rest', ?, 'pm-rest', 'pm-bill', ?, ?)`,
		id, "Testaurant", monthlyFee, billingDay, customerID, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed restaurant: %v", err)
	}
}

type chargeRow struct {
	ID            int64
	InvoiceID     *string
	PaymentStatus *string
	NextRetryAt   *time.Time
}

func (f *billingFixture) loadCharge(t *testing.T, restaurantID int64, period string) *chargeRow {
	t.Helper()
	var c chargeRow
	err := f.db.Raw(
		`SELECT id, invoice_id, payment_status, next_retry_at
		 FROM monthly_fee_charges WHERE restaurant_id = ? AND billing_period = ?`,
		restaurantID, period,
	).Scan(&c).Error
	if err != nil {
		t.Fatalf("load charge: %v", err)
	}
	if c.ID == 0 {
		t.Fatalf("no charge for restaurant %d in %s", restaurantID, period)
	}
	return &c
}

func TestMonthlyInvoiceBillsOnBillingDay(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.seedRestaurant(t, 1, 9900, 15, "cus-1")
	f.seedRestaurant(t, 2, 9900, 20, "cus-2") // wrong day
	f.seedRestaurant(t, 3, 0, 15, "cus-3")    // no monthly fee

	processed, err := f.svc.RunMonthlyInvoice(ctx)
	if err != nil {
		t.Fatalf("monthly invoice: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	if len(f.fake.Invoices) != 1 {
		t.Fatalf("invoices = %d, want 1", len(f.fake.Invoices))
	}
	inv := f.fake.Invoices[0]
	if inv.AccountRef != "cus-1" {
		t.Fatalf("account ref = %q, want cus-1", inv.AccountRef)
	}
	if inv.AmountCents != 9900 {
		t.Fatalf("amount = %d, want 9900", inv.AmountCents)
	}
	if inv.IdempotencyKey != "monthly-invoice-1-2024-06" {
		t.Fatalf("idempotency key = %q", inv.IdempotencyKey)
	}
	if len(f.fake.Collected) != 1 {
		t.Fatalf("collections = %d, want 1", len(f.fake.Collected))
	}

	c := f.loadCharge(t, 1, "2024-06")
	if c.InvoiceID == nil || *c.InvoiceID == "" {
		t.Fatal("charge missing invoice id")
	}

	// Rerun within the same period replays the stored result.
	if _, err := f.svc.RunMonthlyInvoice(ctx); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(f.fake.Invoices) != 1 {
		t.Fatalf("invoices after rerun = %d, want 1", len(f.fake.Invoices))
	}
}

func TestMonthlyInvoiceSkipsMissingBillingCustomer(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.seedRestaurant(t, 1, 9900, 15, "")

	processed, err := f.svc.RunMonthlyInvoice(ctx)
	if err != nil {
		t.Fatalf("monthly invoice: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, want 0", processed)
	}
	if len(f.fake.Invoices) != 0 {
		t.Fatalf("invoices = %d, want 0", len(f.fake.Invoices))
	}
}

func TestCollectFailureReschedulesThenRetries(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.seedRestaurant(t, 1, 9900, 15, "cus-1")
	f.fake.CollectErr = errors.New("card declined")

	// Collection failure must not fail the invoice run.
	if _, err := f.svc.RunMonthlyInvoice(ctx); err != nil {
		t.Fatalf("monthly invoice: %v", err)
	}
	c := f.loadCharge(t, 1, "2024-06")
	if c.PaymentStatus == nil || *c.PaymentStatus != "failed" {
		t.Fatalf("payment_status = %v, want failed", c.PaymentStatus)
	}
	if c.NextRetryAt == nil {
		t.Fatal("charge missing next_retry_at")
	}

	f.fake.CollectErr = nil

	// Backoff has not elapsed yet.
	retried, err := f.svc.RunCollectRetry(ctx)
	if err != nil {
		t.Fatalf("early retry: %v", err)
	}
	if retried != 0 {
		t.Fatalf("retried = %d, want 0 before backoff elapses", retried)
	}

	f.clock.Advance(7 * time.Hour)
	retried, err = f.svc.RunCollectRetry(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried = %d, want 1", retried)
	}
	if len(f.fake.Collected) != 1 {
		t.Fatalf("collections = %d, want 1", len(f.fake.Collected))
	}
}
