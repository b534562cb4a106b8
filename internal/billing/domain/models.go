package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
	PaymentStatusFailed = "failed"
)

// MonthlyFeeCharge snapshots one restaurant's platform fee for one
// billing period. The unique (restaurant, period) pair guarantees a
// restaurant is never invoiced twice for the same month.
type MonthlyFeeCharge struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	RestaurantID  snowflake.ID `json:"restaurant_id" gorm:"not null"`
	BillingPeriod string       `json:"billing_period" gorm:"type:text;not null"`
	AmountCents   int64        `json:"amount_cents" gorm:"not null"`
	InvoiceID     *string      `json:"invoice_id"`
	InvoiceStatus *string      `json:"invoice_status"`
	PaymentStatus *string      `json:"payment_status"`
	NextRetryAt   *time.Time   `json:"next_retry_at"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (MonthlyFeeCharge) TableName() string { return "monthly_fee_charges" }

var ErrChargeNotFound = errors.New("monthly_fee_charge_not_found")

type Repository interface {
	InsertCharge(ctx context.Context, db *gorm.DB, charge *MonthlyFeeCharge) (bool, error)
	FindCharge(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, billingPeriod string) (*MonthlyFeeCharge, error)
	FindChargeByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID string) (*MonthlyFeeCharge, error)
	SetInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, invoiceID string, invoiceStatus string, now time.Time) error
	SetPaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, nextRetryAt *time.Time, now time.Time) error
	ListDueForRetry(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]MonthlyFeeCharge, error)
}
