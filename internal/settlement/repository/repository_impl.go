package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	debitdomain "github.com/tipwave/tipwave/internal/debit/domain"
	"github.com/tipwave/tipwave/internal/settlement/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const rowColumns = `id, restaurant_id, employee_guid, business_date, net_payout_cents,
	debit_batch_id, debit_status, payout_item_id, payout_status, failure_reason,
	created_at, updated_at`

func (r *repo) FindRow(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SettlementRow, error) {
	var item domain.SettlementRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+rowColumns+`
		 FROM settlement_rows
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrRowNotFound
	}
	return &item, nil
}

func (r *repo) ListUnbatched(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, businessDate string) ([]domain.SettlementRow, error) {
	var items []domain.SettlementRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+rowColumns+`
		 FROM settlement_rows
		 WHERE restaurant_id = ? AND business_date = ? AND debit_batch_id IS NULL
		 ORDER BY id`,
		restaurantID,
		businessDate,
	).Scan(&items).Error
	return items, err
}

func (r *repo) LinkToBatch(ctx context.Context, db *gorm.DB, rowIDs []snowflake.ID, batchID snowflake.ID) error {
	if len(rowIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE settlement_rows
		 SET debit_batch_id = ?, debit_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id IN ?`,
		batchID,
		domain.DebitStatusBatched,
		rowIDs,
	).Error
}

// ListPayable returns rows whose debit batch has settled and which no
// disbursement run has claimed yet. Parked rows re-enter through their
// own retry paths, not here.
func (r *repo) ListPayable(ctx context.Context, db *gorm.DB, limit int) ([]domain.SettlementRow, error) {
	var items []domain.SettlementRow
	err := db.WithContext(ctx).Raw(
		`SELECT sr.id, sr.restaurant_id, sr.employee_guid, sr.business_date, sr.net_payout_cents,
			sr.debit_batch_id, sr.debit_status, sr.payout_item_id, sr.payout_status, sr.failure_reason,
			sr.created_at, sr.updated_at
		 FROM settlement_rows sr
		 JOIN debit_batches db ON db.id = sr.debit_batch_id
		 WHERE db.status IN ?
		   AND sr.payout_item_id IS NULL
		   AND (sr.payout_status IS NULL OR sr.payout_status = '')
		 ORDER BY sr.id
		 LIMIT ?`,
		[]string{debitdomain.BatchStatusCompleted, debitdomain.BatchStatusPaid, debitdomain.BatchStatusSettled},
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListPendingVerification(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.SettlementRow, error) {
	var items []domain.SettlementRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+rowColumns+`
		 FROM settlement_rows
		 WHERE payout_status = ? AND updated_at < ?
		 ORDER BY updated_at
		 LIMIT ?`,
		domain.PayoutStatusPendingVerification,
		before,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) SetPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, failureReason *string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE settlement_rows
		 SET payout_status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		failureReason,
		now,
		id,
	).Error
}

func (r *repo) ClearPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE settlement_rows
		 SET payout_status = NULL, failure_reason = NULL, updated_at = ?
		 WHERE id = ?`,
		now,
		id,
	).Error
}

func (r *repo) LinkPayoutItem(ctx context.Context, db *gorm.DB, id snowflake.ID, payoutItemID snowflake.ID, status string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE settlement_rows
		 SET payout_item_id = ?, payout_status = ?, updated_at = ?
		 WHERE id = ?`,
		payoutItemID,
		status,
		now,
		id,
	).Error
}
