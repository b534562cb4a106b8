package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/transfer/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, transfer *domain.Transfer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transfers (
			id, transfer_type, provider_transfer_id, status, amount_cents, currency,
			source_ref, destination_ref, reference_type, reference_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transfer.ID,
		transfer.TransferType,
		transfer.ProviderTransferID,
		transfer.Status,
		transfer.AmountCents,
		transfer.Currency,
		transfer.SourceRef,
		transfer.DestinationRef,
		transfer.ReferenceType,
		transfer.ReferenceID,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	).Error
}

func (r *repo) FindByProviderTransferID(ctx context.Context, db *gorm.DB, providerTransferID string) (*domain.Transfer, error) {
	var item domain.Transfer
	err := db.WithContext(ctx).Raw(
		`SELECT id, transfer_type, provider_transfer_id, status, amount_cents, currency,
			source_ref, destination_ref, reference_type, reference_id, created_at, updated_at
		 FROM transfers
		 WHERE provider_transfer_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		providerTransferID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrTransferNotFound
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transfers
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		now,
		id,
	).Error
}
