package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ItemStatusSubmitted = "submitted"
	ItemStatusCompleted = "completed"
	ItemStatusFailed    = "failed"
)

// PayoutItem is one attempted payout to one employee for one settlement
// row. The fee and fee-payer columns snapshot the restaurant's schedule
// at disbursement time so later schedule changes do not rewrite history.
type PayoutItem struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	RestaurantID       snowflake.ID `json:"restaurant_id" gorm:"not null"`
	EmployeeGUID       string       `json:"employee_guid" gorm:"type:text;not null"`
	SettlementRowID    snowflake.ID `json:"settlement_row_id" gorm:"not null;uniqueIndex"`
	GrossCents         int64        `json:"gross_cents" gorm:"not null"`
	NetCents           int64        `json:"net_cents" gorm:"not null"`
	FeeCentsSnapshot   int64        `json:"fee_cents_snapshot" gorm:"not null"`
	FeePayerSnapshot   string       `json:"fee_payer_snapshot" gorm:"type:text;not null"`
	Rail               string       `json:"rail" gorm:"type:text;not null"`
	Status             string       `json:"status" gorm:"type:text;not null"`
	ProviderTransferID *string      `json:"provider_transfer_id"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (PayoutItem) TableName() string { return "payout_items" }

// CarryForwardBalance defers amounts too small to move profitably after
// provider fees until a later cycle grows them past the fee.
type CarryForwardBalance struct {
	EmployeeGUID      string       `json:"employee_guid" gorm:"primaryKey;type:text"`
	RestaurantID      snowflake.ID `json:"restaurant_id" gorm:"primaryKey"`
	CarryForwardCents int64        `json:"carry_forward_cents" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (CarryForwardBalance) TableName() string { return "carry_forward_balances" }

var ErrItemNotFound = errors.New("payout_item_not_found")

type Repository interface {
	InsertItem(ctx context.Context, db *gorm.DB, item *PayoutItem) error
	FindItemByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutItem, error)
	FindItemBySettlementRow(ctx context.Context, db *gorm.DB, settlementRowID snowflake.ID) (*PayoutItem, error)
	FindItemByProviderTransferID(ctx context.Context, db *gorm.DB, providerTransferID string) (*PayoutItem, error)
	SetItemTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTransferID string, now time.Time) error
	UpdateItemStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error

	CarryForward(ctx context.Context, db *gorm.DB, employeeGUID string, restaurantID snowflake.ID) (int64, error)
	SetCarryForward(ctx context.Context, db *gorm.DB, employeeGUID string, restaurantID snowflake.ID, cents int64, now time.Time) error
}
