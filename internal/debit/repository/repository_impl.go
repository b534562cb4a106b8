package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/debit/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const batchColumns = `id, restaurant_id, business_date, status, principal_total_cents,
	fee_total_cents, total_debit_cents, provider_transfer_id, created_at, updated_at`

func (r *repo) FindBatch(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, businessDate string) (*domain.DebitBatch, error) {
	var item domain.DebitBatch
	err := db.WithContext(ctx).Raw(
		`SELECT `+batchColumns+`
		 FROM debit_batches
		 WHERE restaurant_id = ? AND business_date = ?
		 LIMIT 1`,
		restaurantID,
		businessDate,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrBatchNotFound
	}
	return &item, nil
}

func (r *repo) FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DebitBatch, error) {
	var item domain.DebitBatch
	err := db.WithContext(ctx).Raw(
		`SELECT `+batchColumns+`
		 FROM debit_batches
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrBatchNotFound
	}
	return &item, nil
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, batch *domain.DebitBatch) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO debit_batches (
			id, restaurant_id, business_date, status, principal_total_cents,
			fee_total_cents, total_debit_cents, provider_transfer_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (restaurant_id, business_date) DO NOTHING`,
		batch.ID,
		batch.RestaurantID,
		batch.BusinessDate,
		batch.Status,
		batch.PrincipalTotalCents,
		batch.FeeTotalCents,
		batch.TotalDebitCents,
		batch.ProviderTransferID,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetProviderTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTransferID string, status string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE debit_batches
		 SET provider_transfer_id = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		providerTransferID,
		status,
		now,
		id,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE debit_batches
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) FindByProviderTransferID(ctx context.Context, db *gorm.DB, providerTransferID string) (*domain.DebitBatch, error) {
	var item domain.DebitBatch
	err := db.WithContext(ctx).Raw(
		`SELECT `+batchColumns+`
		 FROM debit_batches
		 WHERE provider_transfer_id = ?
		 LIMIT 1`,
		providerTransferID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrBatchNotFound
	}
	return &item, nil
}

func (r *repo) ListSubmittedWithoutTransfer(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.DebitBatch, error) {
	var items []domain.DebitBatch
	err := db.WithContext(ctx).Raw(
		`SELECT `+batchColumns+`
		 FROM debit_batches
		 WHERE status = ? AND provider_transfer_id IS NULL AND updated_at < ?
		 ORDER BY updated_at
		 LIMIT ?`,
		domain.BatchStatusSubmitted,
		before,
		limit,
	).Scan(&items).Error
	return items, err
}
