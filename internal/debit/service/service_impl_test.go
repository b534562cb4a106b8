package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/config"
	debitrepo "github.com/tipwave/tipwave/internal/debit/repository"
	debitservice "github.com/tipwave/tipwave/internal/debit/service"
	"github.com/tipwave/tipwave/internal/idempotency"
	"github.com/tipwave/tipwave/internal/provider"
	providerdomain "github.com/tipwave/tipwave/internal/provider/domain"
	"github.com/tipwave/tipwave/internal/provider/providertest"
	restaurantrepo "github.com/tipwave/tipwave/internal/restaurant/repository"
	settlementrepo "github.com/tipwave/tipwave/internal/settlement/repository"
	"github.com/tipwave/tipwave/internal/testdb"
	transferrepo "github.com/tipwave/tipwave/internal/transfer/repository"
)

type debitFixture struct {
	db    *gorm.DB
	fake  *providertest.Fake
	clock *clock.FakeClock
	svc   *debitservice.Service
}

func newDebitFixture(t *testing.T) *debitFixture {
	t.Helper()

	db := testdb.Open(t)
	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC))
	fake := &providertest.Fake{Capabilities: []string{
		providerdomain.CapabilitySendFunds,
		providerdomain.CapabilityReceiveFunds,
	}}
	cfg := &config.Config{PlatformMethodID: "pm-platform"}

	guard := idempotency.NewGuard(idempotency.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
	})
	svc := debitservice.NewService(debitservice.Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          fakeClock,
		Config:         cfg,
		Guard:          guard,
		Adapters:       &provider.Adapters{Payout: fake, Billing: fake},
		RestaurantRepo: restaurantrepo.Provide(),
		SettlementRepo: settlementrepo.Provide(),
		BatchRepo:      debitrepo.Provide(),
		TransferRepo:   transferrepo.Provide(),
	})
	return &debitFixture{db: db, fake: fake, clock: fakeClock, svc: svc}
}

func (f *debitFixture) seedRestaurant(t *testing.T, id int64, feePayer string, payoutFee int64) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO restaurants (
			id, name, timezone, fee_payer, payout_fee_cents, instant_threshold_cents,
			instant_fee_cents, ach_fee_cents, monthly_fee_cents, billing_day,
			provider_account_id, billing_customer_id, debit_method_id, billing_method_id,
			created_at, updated_at
		) VALUES (?, ?, 'UTC', ?, ?, 5200, 25, 0, 0, 1, 'acct-rest', 'cus-rest', 'pm-rest', 'pm-bill', ?, ?)`,
		id, "Testaurant", feePayer, payoutFee, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed restaurant: %v", err)
	}
}

func (f *debitFixture) seedRow(t *testing.T, rowID, restaurantID int64, guid string, net int64, date string) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO settlement_rows (
			id, restaurant_id, employee_guid, business_date, net_payout_cents, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rowID, restaurantID, guid, date, net, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed settlement row: %v", err)
	}
}

type batchRow struct {
	ID                 int64
	Status             string
	PrincipalTotal     int64 `gorm:"column:principal_total_cents"`
	FeeTotal           int64 `gorm:"column:fee_total_cents"`
	TotalDebit         int64 `gorm:"column:total_debit_cents"`
	ProviderTransferID *string
}

func (f *debitFixture) loadBatch(t *testing.T, restaurantID int64, date string) *batchRow {
	t.Helper()
	var b batchRow
	err := f.db.Raw(
		`SELECT id, status, principal_total_cents, fee_total_cents, total_debit_cents, provider_transfer_id
		 FROM debit_batches WHERE restaurant_id = ? AND business_date = ?`,
		restaurantID, date,
	).Scan(&b).Error
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if b.ID == 0 {
		t.Fatalf("no debit batch for restaurant %d on %s", restaurantID, date)
	}
	return &b
}

func TestNightlyDebitBatchesAndDebits(t *testing.T) {
	ctx := context.Background()
	f := newDebitFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 100)
	f.seedRow(t, 10, 1, "emp-1", 4000, "2024-06-01")
	f.seedRow(t, 11, 1, "emp-2", 2500, "2024-06-01")

	processed, err := f.svc.RunNightlyDebit(ctx)
	if err != nil {
		t.Fatalf("nightly debit: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	b := f.loadBatch(t, 1, "2024-06-01")
	if b.Status != "submitted" {
		t.Fatalf("batch status = %q, want submitted", b.Status)
	}
	if b.PrincipalTotal != 6500 {
		t.Fatalf("principal = %d, want 6500", b.PrincipalTotal)
	}
	// Two rows at 100 cents each with the restaurant covering fees.
	if b.FeeTotal != 200 {
		t.Fatalf("fee total = %d, want 200", b.FeeTotal)
	}
	if b.TotalDebit != 6700 {
		t.Fatalf("total debit = %d, want 6700", b.TotalDebit)
	}
	if b.ProviderTransferID == nil || *b.ProviderTransferID == "" {
		t.Fatal("batch missing provider transfer id")
	}

	req := f.fake.Transfers[0]
	if req.AmountCents != 6700 {
		t.Fatalf("transfer amount = %d, want 6700", req.AmountCents)
	}
	if req.Source != "pm-rest" || req.Destination != "pm-platform" {
		t.Fatalf("transfer endpoints = %q -> %q", req.Source, req.Destination)
	}
	if req.IdempotencyKey != "nightly-debit-1-2024-06-01" {
		t.Fatalf("idempotency key = %q", req.IdempotencyKey)
	}

	var linked int64
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM settlement_rows WHERE debit_batch_id = ? AND debit_status = 'batched'`, b.ID,
	).Scan(&linked).Error; err != nil {
		t.Fatalf("count linked rows: %v", err)
	}
	if linked != 2 {
		t.Fatalf("linked rows = %d, want 2", linked)
	}
}

func TestNightlyDebitEmployeeFeePayerSkipsFee(t *testing.T) {
	ctx := context.Background()
	f := newDebitFixture(t)
	f.seedRestaurant(t, 1, "employee", 100)
	f.seedRow(t, 10, 1, "emp-1", 4000, "2024-06-01")

	if _, err := f.svc.RunNightlyDebit(ctx); err != nil {
		t.Fatalf("nightly debit: %v", err)
	}
	b := f.loadBatch(t, 1, "2024-06-01")
	if b.FeeTotal != 0 {
		t.Fatalf("fee total = %d, want 0 when employees cover fees", b.FeeTotal)
	}
	if b.TotalDebit != 4000 {
		t.Fatalf("total debit = %d, want 4000", b.TotalDebit)
	}
}

func TestNightlyDebitRerunDoesNotDoubleDebit(t *testing.T) {
	ctx := context.Background()
	f := newDebitFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 100)
	f.seedRow(t, 10, 1, "emp-1", 4000, "2024-06-01")

	if _, err := f.svc.RunNightlyDebit(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := f.svc.RunNightlyDebit(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.fake.TransferCount() != 1 {
		t.Fatalf("transfers = %d, want 1", f.fake.TransferCount())
	}
	var batches int64
	if err := f.db.Raw(`SELECT COUNT(*) FROM debit_batches`).Scan(&batches).Error; err != nil {
		t.Fatalf("count batches: %v", err)
	}
	if batches != 1 {
		t.Fatalf("batches = %d, want 1", batches)
	}
}

func TestNightlyDebitSkipsUnverifiedRestaurant(t *testing.T) {
	ctx := context.Background()
	f := newDebitFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 100)
	f.seedRow(t, 10, 1, "emp-1", 4000, "2024-06-01")
	f.fake.Capabilities = []string{providerdomain.CapabilityReceiveFunds}

	processed, err := f.svc.RunNightlyDebit(ctx)
	if err != nil {
		t.Fatalf("nightly debit: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, want 0", processed)
	}
	if f.fake.TransferCount() != 0 {
		t.Fatalf("transfers = %d, want 0", f.fake.TransferCount())
	}
}

func TestReconcileSweepRetriesStrandedBatch(t *testing.T) {
	ctx := context.Background()
	f := newDebitFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 100)
	f.seedRow(t, 10, 1, "emp-1", 4000, "2024-06-01")

	// Batch commits, then the provider call dies. The batch is left
	// submitted with no provider transfer id.
	f.fake.TransferErr = errors.New("provider unreachable")
	if _, err := f.svc.RunNightlyDebit(ctx); err == nil {
		t.Fatal("expected nightly debit error")
	}
	b := f.loadBatch(t, 1, "2024-06-01")
	if b.ProviderTransferID != nil {
		t.Fatalf("provider transfer id = %v, want nil", *b.ProviderTransferID)
	}

	f.fake.TransferErr = nil

	// Too young for the sweep.
	swept, err := f.svc.RunReconcileSweep(ctx)
	if err != nil {
		t.Fatalf("early sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0 before batch goes stale", swept)
	}

	f.clock.Advance(45 * time.Minute)
	swept, err = f.svc.RunReconcileSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	b = f.loadBatch(t, 1, "2024-06-01")
	if b.ProviderTransferID == nil || *b.ProviderTransferID == "" {
		t.Fatal("batch still missing provider transfer id after sweep")
	}
	if got := f.fake.Transfers[0].IdempotencyKey; got != "nightly-debit-1-2024-06-01" {
		t.Fatalf("retry idempotency key = %q", got)
	}
}
