package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Debit-side status of a settlement row.
const (
	DebitStatusBatched = "batched"
)

// Payout-side statuses of a settlement row. Empty means the row has not
// been picked up by disbursement yet. Parked rows keep the reason in
// payout_status so later runs can re-evaluate or skip them.
const (
	PayoutStatusSubmitted            = "submitted"
	PayoutStatusCompleted            = "completed"
	PayoutStatusFailed               = "failed"
	PayoutStatusNoAccount            = "no_account"
	PayoutStatusPendingVerification  = "pending_verification"
	PayoutStatusInsufficientAfterFee = "insufficient_after_fee"
	PayoutStatusCarriedForward       = "carried_forward"
)

// SettlementRow is one employee's net tip earnings for one business
// date at one restaurant. Rows arrive from the settlement engine and
// flow through the debit and disbursement jobs.
type SettlementRow struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	RestaurantID   snowflake.ID  `json:"restaurant_id" gorm:"not null;index"`
	EmployeeGUID   string        `json:"employee_guid" gorm:"type:text;not null"`
	BusinessDate   string        `json:"business_date" gorm:"type:text;not null"`
	NetPayoutCents int64         `json:"net_payout_cents" gorm:"not null"`
	DebitBatchID   *snowflake.ID `json:"debit_batch_id"`
	DebitStatus    *string       `json:"debit_status"`
	PayoutItemID   *snowflake.ID `json:"payout_item_id"`
	PayoutStatus   *string       `json:"payout_status"`
	FailureReason  *string       `json:"failure_reason"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"not null"`
}

func (SettlementRow) TableName() string { return "settlement_rows" }

// ParkedStatus reports whether the row is parked rather than terminal,
// meaning a later disbursement run may pick it up again.
func ParkedStatus(status string) bool {
	switch status {
	case PayoutStatusNoAccount, PayoutStatusPendingVerification:
		return true
	}
	return false
}

var ErrRowNotFound = errors.New("settlement_row_not_found")

type Repository interface {
	FindRow(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SettlementRow, error)
	ListUnbatched(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, businessDate string) ([]SettlementRow, error)
	LinkToBatch(ctx context.Context, db *gorm.DB, rowIDs []snowflake.ID, batchID snowflake.ID) error
	ListPayable(ctx context.Context, db *gorm.DB, limit int) ([]SettlementRow, error)
	ListPendingVerification(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]SettlementRow, error)
	SetPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, failureReason *string, now time.Time) error
	ClearPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	LinkPayoutItem(ctx context.Context, db *gorm.DB, id snowflake.ID, payoutItemID snowflake.ID, status string, now time.Time) error
}
