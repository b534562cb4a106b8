package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	TypeRestaurantDebit = "restaurant_debit"
	TypeEmployeePayout  = "employee_payout"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	ReferenceDebitBatch = "debit_batch"
	ReferencePayoutItem = "payout_item"
)

// Transfer is the local record of one provider money movement. Rows are
// append-only; only status changes after insert, driven by webhooks.
type Transfer struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	TransferType       string       `json:"transfer_type" gorm:"type:text;not null"`
	ProviderTransferID string       `json:"provider_transfer_id" gorm:"type:text;not null;index"`
	Status             string       `json:"status" gorm:"type:text;not null"`
	AmountCents        int64        `json:"amount_cents" gorm:"not null"`
	Currency           string       `json:"currency" gorm:"type:text;not null"`
	SourceRef          string       `json:"source_ref" gorm:"type:text;not null"`
	DestinationRef     string       `json:"destination_ref" gorm:"type:text;not null"`
	ReferenceType      string       `json:"reference_type" gorm:"type:text;not null"`
	ReferenceID        snowflake.ID `json:"reference_id" gorm:"not null"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (Transfer) TableName() string { return "transfers" }

var ErrTransferNotFound = errors.New("transfer_not_found")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, transfer *Transfer) error
	FindByProviderTransferID(ctx context.Context, db *gorm.DB, providerTransferID string) (*Transfer, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error
}
