package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Batch lifecycle. A batch is submitted by the nightly job and advanced
// by provider webhooks; completed, paid and settled all unlock the
// batch's rows for disbursement.
const (
	BatchStatusSubmitted = "submitted"
	BatchStatusCompleted = "completed"
	BatchStatusPaid      = "paid"
	BatchStatusSettled   = "settled"
	BatchStatusFailed    = "failed"
)

// DebitBatch aggregates one restaurant's settlement rows for one
// business date into a single debit against the restaurant's account.
type DebitBatch struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	RestaurantID        snowflake.ID `json:"restaurant_id" gorm:"not null"`
	BusinessDate        string       `json:"business_date" gorm:"type:text;not null"`
	Status              string       `json:"status" gorm:"type:text;not null"`
	PrincipalTotalCents int64        `json:"principal_total_cents" gorm:"not null"`
	FeeTotalCents       int64        `json:"fee_total_cents" gorm:"not null"`
	TotalDebitCents     int64        `json:"total_debit_cents" gorm:"not null"`
	ProviderTransferID  *string      `json:"provider_transfer_id"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null"`
}

func (DebitBatch) TableName() string { return "debit_batches" }

var ErrBatchNotFound = errors.New("debit_batch_not_found")

type Repository interface {
	FindBatch(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, businessDate string) (*DebitBatch, error)
	FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DebitBatch, error)
	InsertBatch(ctx context.Context, db *gorm.DB, batch *DebitBatch) (bool, error)
	SetProviderTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTransferID string, status string, now time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error
	FindByProviderTransferID(ctx context.Context, db *gorm.DB, providerTransferID string) (*DebitBatch, error)
	ListSubmittedWithoutTransfer(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]DebitBatch, error)
}
