package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/billing/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const chargeColumns = `id, restaurant_id, billing_period, amount_cents, invoice_id,
	invoice_status, payment_status, next_retry_at, created_at, updated_at`

func (r *repo) InsertCharge(ctx context.Context, db *gorm.DB, charge *domain.MonthlyFeeCharge) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO monthly_fee_charges (
			id, restaurant_id, billing_period, amount_cents, invoice_id,
			invoice_status, payment_status, next_retry_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (restaurant_id, billing_period) DO NOTHING`,
		charge.ID,
		charge.RestaurantID,
		charge.BillingPeriod,
		charge.AmountCents,
		charge.InvoiceID,
		charge.InvoiceStatus,
		charge.PaymentStatus,
		charge.NextRetryAt,
		charge.CreatedAt,
		charge.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindCharge(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, billingPeriod string) (*domain.MonthlyFeeCharge, error) {
	var item domain.MonthlyFeeCharge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM monthly_fee_charges
		 WHERE restaurant_id = ? AND billing_period = ?
		 LIMIT 1`,
		restaurantID,
		billingPeriod,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrChargeNotFound
	}
	return &item, nil
}

func (r *repo) FindChargeByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.MonthlyFeeCharge, error) {
	var item domain.MonthlyFeeCharge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM monthly_fee_charges
		 WHERE invoice_id = ?
		 LIMIT 1`,
		invoiceID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrChargeNotFound
	}
	return &item, nil
}

func (r *repo) SetInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, invoiceID string, invoiceStatus string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE monthly_fee_charges
		 SET invoice_id = ?, invoice_status = ?, updated_at = ?
		 WHERE id = ?`,
		invoiceID,
		invoiceStatus,
		now,
		id,
	).Error
}

func (r *repo) SetPaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, nextRetryAt *time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE monthly_fee_charges
		 SET payment_status = ?, next_retry_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		nextRetryAt,
		now,
		id,
	).Error
}

// ListDueForRetry picks charges with an invoice but no successful
// payment whose backoff window has elapsed. Charges that never reached
// invoice creation are re-driven by the monthly job, not this sweep.
func (r *repo) ListDueForRetry(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.MonthlyFeeCharge, error) {
	var items []domain.MonthlyFeeCharge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM monthly_fee_charges
		 WHERE invoice_id IS NOT NULL
		   AND (payment_status IS NULL OR payment_status IN ?)
		   AND (next_retry_at IS NULL OR next_retry_at <= ?)
		 ORDER BY next_retry_at
		 LIMIT ?`,
		[]string{domain.PaymentStatusFailed, domain.PaymentStatusUnpaid},
		now,
		limit,
	).Scan(&items).Error
	return items, err
}
