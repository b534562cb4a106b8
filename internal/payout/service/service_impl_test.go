package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/config"
	"github.com/tipwave/tipwave/internal/idempotency"
	payoutrepo "github.com/tipwave/tipwave/internal/payout/repository"
	payoutservice "github.com/tipwave/tipwave/internal/payout/service"
	"github.com/tipwave/tipwave/internal/provider"
	providerdomain "github.com/tipwave/tipwave/internal/provider/domain"
	"github.com/tipwave/tipwave/internal/provider/providertest"
	restaurantrepo "github.com/tipwave/tipwave/internal/restaurant/repository"
	settlementrepo "github.com/tipwave/tipwave/internal/settlement/repository"
	"github.com/tipwave/tipwave/internal/testdb"
	transferrepo "github.com/tipwave/tipwave/internal/transfer/repository"
)

type payoutFixture struct {
	db    *gorm.DB
	fake  *providertest.Fake
	clock *clock.FakeClock
	svc   *payoutservice.Service
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()

	db := testdb.Open(t)
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC))
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
	svc := payoutservice.NewService(payoutservice.Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          fakeClock,
		Config:         cfg,
		Guard:          guard,
		Adapters:       &provider.Adapters{Payout: fake, Billing: fake},
		RestaurantRepo: restaurantrepo.Provide(),
		SettlementRepo: settlementrepo.Provide(),
		PayoutRepo:     payoutrepo.Provide(),
		TransferRepo:   transferrepo.Provide(),
	})
	return &payoutFixture{db: db, fake: fake, clock: fakeClock, svc: svc}
}

func (f *payoutFixture) seedRestaurant(t *testing.T, id int64, feePayer string, payoutFee, achFee int64) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO restaurants (
			id, name, timezone, fee_payer, payout_fee_cents, instant_threshold_cents,
			instant_fee_cents, ach_fee_cents, monthly_fee_cents, billing_day,
			provider_account_id, billing_customer_id, debit_method_id, billing_method_id,
			created_at, updated_at
		) VALUES (?, ?, 'UTC', ?, ?, 5200, 25, ?, 0, 1, 'acct-rest', 'cus-rest', 'pm-rest', 'pm-bill', ?, ?)`,
		id, "Testaurant", feePayer, payoutFee, achFee, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed restaurant: %v", err)
	}
}

func (f *payoutFixture) seedEmployee(t *testing.T, guid, methodType string) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO employee_accounts (employee_guid, provider_account_id, method_id, method_type, created_at, updated_at)
		 VALUES (?, 'acct-emp', 'pm-emp', ?, ?, ?)`,
		guid, methodType, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed employee: %v", err)
	}
}

func (f *payoutFixture) seedSettledRow(t *testing.T, rowID, restaurantID int64, guid string, net int64) {
	t.Helper()
	batchID := rowID + 100000
	err := f.db.Exec(
		`INSERT INTO debit_batches (
			id, restaurant_id, business_date, status, principal_total_cents,
			fee_total_cents, total_debit_cents, provider_transfer_id, created_at, updated_at
		) VALUES (?, ?, '2024-06-01', 'completed', ?, 0, ?, 'prov-debit', ?, ?)`,
		batchID, restaurantID, net, net, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	err = f.db.Exec(
		`INSERT INTO settlement_rows (
			id, restaurant_id, employee_guid, business_date, net_payout_cents,
			debit_batch_id, debit_status, created_at, updated_at
		) VALUES (?, ?, ?, '2024-06-01', ?, ?, 'batched', ?, ?)`,
		rowID, restaurantID, guid, net, batchID, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed settlement row: %v", err)
	}
}

func (f *payoutFixture) rowStatus(t *testing.T, rowID int64) string {
	t.Helper()
	var row struct{ PayoutStatus *string }
	if err := f.db.Raw(`SELECT payout_status FROM settlement_rows WHERE id = ?`, rowID).Scan(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.PayoutStatus == nil {
		return ""
	}
	return *row.PayoutStatus
}

func (f *payoutFixture) carry(t *testing.T, guid string, restaurantID int64) int64 {
	t.Helper()
	var row struct{ CarryForwardCents int64 }
	if err := f.db.Raw(
		`SELECT carry_forward_cents FROM carry_forward_balances WHERE employee_guid = ? AND restaurant_id = ?`,
		guid, restaurantID,
	).Scan(&row).Error; err != nil {
		t.Fatalf("load carry: %v", err)
	}
	return row.CarryForwardCents
}

func TestDisbursementPaysSettledRow(t *testing.T) {
	ctx := context.Background()
	f := newPayoutFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 100, 0)
	f.seedEmployee(t, "emp-1", "rtp")
	f.seedSettledRow(t, 10, 1, "emp-1", 4000)

	processed, err := f.svc.RunDisbursement(ctx)
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	if got := f.rowStatus(t, 10); got != "submitted" {
		t.Fatalf("payout_status = %q, want submitted", got)
	}
	if f.fake.TransferCount() != 1 {
		t.Fatalf("transfers = %d, want 1", f.fake.TransferCount())
	}
	req := f.fake.Transfers[0]
	if req.AmountCents != 4000 {
		t.Fatalf("transfer amount = %d, want 4000", req.AmountCents)
	}
	if req.Rail != "same_day_ach" {
		t.Fatalf("rail = %q, want same_day_ach", req.Rail)
	}
	if req.IdempotencyKey != "payout-10" {
		t.Fatalf("idempotency key = %q", req.IdempotencyKey)
	}

	// A second run must not pay the same row again.
	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("second disburse: %v", err)
	}
	if f.fake.TransferCount() != 1 {
		t.Fatalf("transfers after rerun = %d, want 1", f.fake.TransferCount())
	}
}

func TestDisbursementEmployeeFee(t *testing.T) {
	ctx := context.Background()
	f := newPayoutFixture(t)
	f.seedRestaurant(t, 1, "employee", 100, 0)
	f.seedEmployee(t, "emp-1", "debit_card")
	f.seedSettledRow(t, 10, 1, "emp-1", 5000)

	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if f.fake.Transfers[0].AmountCents != 4900 {
		t.Fatalf("transfer amount = %d, want 4900", f.fake.Transfers[0].AmountCents)
	}
}

func TestDisbursementInsufficientAfterFee(t *testing.T) {
	ctx := context.Background()
	f := newPayoutFixture(t)
	f.seedRestaurant(t, 1, "employee", 100, 0)
	f.seedEmployee(t, "emp-1", "debit_card")
	f.seedSettledRow(t, 10, 1, "emp-1", 50)

	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if got := f.rowStatus(t, 10); got != "insufficient_after_fee" {
		t.Fatalf("payout_status = %q, want insufficient_after_fee", got)
	}
	if f.fake.TransferCount() != 0 {
		t.Fatalf("transfers = %d, want 0", f.fake.TransferCount())
	}
}

func TestDisbursementNoAccount(t *testing.T) {
	ctx := context.Background()
	f := newPayoutFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 100, 0)
	f.seedSettledRow(t, 10, 1, "emp-missing", 4000)

	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if got := f.rowStatus(t, 10); got != "no_account" {
		t.Fatalf("payout_status = %q, want no_account", got)
	}
}

func TestDisbursementCarryForward(t *testing.T) {
	ctx := context.Background()
	f := newPayoutFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 0, 100)
	f.seedEmployee(t, "emp-1", "ach_bank")
	f.seedSettledRow(t, 10, 1, "emp-1", 50)

	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("first disburse: %v", err)
	}
	if got := f.rowStatus(t, 10); got != "carried_forward" {
		t.Fatalf("payout_status = %q, want carried_forward", got)
	}
	if got := f.carry(t, "emp-1", 1); got != 50 {
		t.Fatalf("carry = %d, want 50", got)
	}
	if f.fake.TransferCount() != 0 {
		t.Fatalf("transfers = %d, want 0", f.fake.TransferCount())
	}

	// The next cycle's 80 cents plus the 50 cent carry clears the
	// 100 cent rail fee; 30 cents moves and the carry resets.
	f.seedSettledRow(t, 11, 1, "emp-1", 80)
	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("second disburse: %v", err)
	}
	if f.fake.TransferCount() != 1 {
		t.Fatalf("transfers = %d, want 1", f.fake.TransferCount())
	}
	if f.fake.Transfers[0].AmountCents != 30 {
		t.Fatalf("transfer amount = %d, want 30", f.fake.Transfers[0].AmountCents)
	}
	if got := f.carry(t, "emp-1", 1); got != 0 {
		t.Fatalf("carry after transfer = %d, want 0", got)
	}
}

func TestVerificationRetryClearsParkedRows(t *testing.T) {
	ctx := context.Background()
	f := newPayoutFixture(t)
	f.seedRestaurant(t, 1, "restaurant", 100, 0)
	f.seedEmployee(t, "emp-1", "rtp")
	f.seedSettledRow(t, 10, 1, "emp-1", 4000)

	f.fake.Capabilities = nil
	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if got := f.rowStatus(t, 10); got != "pending_verification" {
		t.Fatalf("payout_status = %q, want pending_verification", got)
	}

	// Verification clears at the provider, but the sweep only touches
	// rows parked for over an hour.
	f.fake.Capabilities = []string{providerdomain.CapabilityReceiveFunds}
	cleared, err := f.svc.RunVerificationRetry(ctx)
	if err != nil {
		t.Fatalf("early retry: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("cleared = %d, want 0 before the hour elapses", cleared)
	}

	f.clock.Advance(2 * time.Hour)
	cleared, err = f.svc.RunVerificationRetry(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}
	if got := f.rowStatus(t, 10); got != "" {
		t.Fatalf("payout_status = %q, want cleared", got)
	}

	if _, err := f.svc.RunDisbursement(ctx); err != nil {
		t.Fatalf("disburse after clear: %v", err)
	}
	if got := f.rowStatus(t, 10); got != "submitted" {
		t.Fatalf("payout_status = %q, want submitted", got)
	}
}
