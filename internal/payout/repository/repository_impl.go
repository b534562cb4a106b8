package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/payout/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const itemColumns = `id, restaurant_id, employee_guid, settlement_row_id, gross_cents, net_cents,
	fee_cents_snapshot, fee_payer_snapshot, rail, status, provider_transfer_id, created_at, updated_at`

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.PayoutItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_items (
			id, restaurant_id, employee_guid, settlement_row_id, gross_cents, net_cents,
			fee_cents_snapshot, fee_payer_snapshot, rail, status, provider_transfer_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.RestaurantID,
		item.EmployeeGUID,
		item.SettlementRowID,
		item.GrossCents,
		item.NetCents,
		item.FeeCentsSnapshot,
		item.FeePayerSnapshot,
		item.Rail,
		item.Status,
		item.ProviderTransferID,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindItemByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PayoutItem, error) {
	return r.findItem(ctx, db, `WHERE id = ?`, id)
}

func (r *repo) FindItemBySettlementRow(ctx context.Context, db *gorm.DB, settlementRowID snowflake.ID) (*domain.PayoutItem, error) {
	return r.findItem(ctx, db, `WHERE settlement_row_id = ?`, settlementRowID)
}

func (r *repo) FindItemByProviderTransferID(ctx context.Context, db *gorm.DB, providerTransferID string) (*domain.PayoutItem, error) {
	return r.findItem(ctx, db, `WHERE provider_transfer_id = ?`, providerTransferID)
}

func (r *repo) findItem(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.PayoutItem, error) {
	var item domain.PayoutItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+`
		 FROM payout_items `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrItemNotFound
	}
	return &item, nil
}

func (r *repo) SetItemTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTransferID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payout_items
		 SET provider_transfer_id = ?, updated_at = ?
		 WHERE id = ?`,
		providerTransferID,
		now,
		id,
	).Error
}

func (r *repo) UpdateItemStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payout_items
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) CarryForward(ctx context.Context, db *gorm.DB, employeeGUID string, restaurantID snowflake.ID) (int64, error) {
	var row struct {
		CarryForwardCents int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT carry_forward_cents
		 FROM carry_forward_balances
		 WHERE employee_guid = ? AND restaurant_id = ?
		 LIMIT 1`,
		employeeGUID,
		restaurantID,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.CarryForwardCents, nil
}

func (r *repo) SetCarryForward(ctx context.Context, db *gorm.DB, employeeGUID string, restaurantID snowflake.ID, cents int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO carry_forward_balances (employee_guid, restaurant_id, carry_forward_cents, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (employee_guid, restaurant_id)
		 DO UPDATE SET carry_forward_cents = EXCLUDED.carry_forward_cents, updated_at = EXCLUDED.updated_at`,
		employeeGUID,
		restaurantID,
		cents,
		now,
	).Error
}
