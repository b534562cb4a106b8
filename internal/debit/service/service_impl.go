package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/config"
	debitdomain "github.com/tipwave/tipwave/internal/debit/domain"
	"github.com/tipwave/tipwave/internal/idempotency"
	idempotencydomain "github.com/tipwave/tipwave/internal/idempotency/domain"
	"github.com/tipwave/tipwave/internal/provider"
	providerdomain "github.com/tipwave/tipwave/internal/provider/domain"
	restaurantdomain "github.com/tipwave/tipwave/internal/restaurant/domain"
	settlementdomain "github.com/tipwave/tipwave/internal/settlement/domain"
	transferdomain "github.com/tipwave/tipwave/internal/transfer/domain"
)

const (
	debitLockTTL = 15 * time.Minute

	// reconcileAge is how long a submitted batch may sit without a
	// provider transfer before the sweep retries it.
	reconcileAge   = 30 * time.Minute
	reconcileLimit = 100
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         *config.Config
	Guard          *idempotency.Guard
	Adapters       *provider.Adapters
	RestaurantRepo restaurantdomain.Repository
	SettlementRepo settlementdomain.Repository
	BatchRepo      debitdomain.Repository
	TransferRepo   transferdomain.Repository
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	cfg            *config.Config
	guard          *idempotency.Guard
	adapters       *provider.Adapters
	restaurantRepo restaurantdomain.Repository
	settlementRepo settlementdomain.Repository
	batchRepo      debitdomain.Repository
	transferRepo   transferdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("debit.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		cfg:            p.Config,
		guard:          p.Guard,
		adapters:       p.Adapters,
		restaurantRepo: p.RestaurantRepo,
		settlementRepo: p.SettlementRepo,
		batchRepo:      p.BatchRepo,
		transferRepo:   p.TransferRepo,
	}
}

type debitResult struct {
	BatchID            snowflake.ID `json:"batch_id"`
	ProviderTransferID string       `json:"provider_transfer_id"`
	TotalDebitCents    int64        `json:"total_debit_cents"`
	RowCount           int          `json:"row_count"`
}

// RunNightlyDebit batches yesterday's approved settlement rows per
// restaurant and debits each restaurant's account in one transfer.
// One restaurant's failure never aborts the others.
func (s *Service) RunNightlyDebit(ctx context.Context) (int, error) {
	restaurants, err := s.restaurantRepo.ListRestaurants(ctx, s.db)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for i := range restaurants {
		r := &restaurants[i]
		ran, err := s.debitRestaurant(ctx, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("restaurant %d: %w", r.ID, err))
			continue
		}
		if ran {
			processed++
		}
	}
	return processed, errors.Join(errs...)
}

// BusinessDate is the most recently closed local day for the restaurant.
func (s *Service) BusinessDate(r *restaurantdomain.Restaurant) string {
	return s.clock.Now().In(r.Location()).AddDate(0, 0, -1).Format("2006-01-02")
}

func (s *Service) debitRestaurant(ctx context.Context, r *restaurantdomain.Restaurant) (bool, error) {
	businessDate := s.BusinessDate(r)

	rows, err := s.settlementRepo.ListUnbatched(ctx, s.db, r.ID, businessDate)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}

	if r.ProviderAccountID == "" || r.DebitMethodID == "" {
		s.log.Warn("restaurant missing debit method, skipping cycle",
			zap.Int64("restaurant_id", int64(r.ID)),
			zap.String("business_date", businessDate),
		)
		return false, nil
	}

	ready, err := s.adapters.Payout.VerifyCapabilities(ctx, r.ProviderAccountID, []string{providerdomain.CapabilitySendFunds})
	if err != nil {
		return false, err
	}
	if !ready {
		s.log.Info("restaurant account cannot send funds yet, skipping cycle",
			zap.Int64("restaurant_id", int64(r.ID)),
			zap.String("business_date", businessDate),
		)
		return false, nil
	}

	var principal int64
	rowIDs := make([]snowflake.ID, 0, len(rows))
	for i := range rows {
		principal += rows[i].NetPayoutCents
		rowIDs = append(rowIDs, rows[i].ID)
	}
	var feeTotal int64
	if r.FeePayer == restaurantdomain.FeePayerRestaurant {
		feeTotal = int64(len(rows)) * r.PayoutFeeCents
	}
	totalDebit := principal + feeTotal

	key := fmt.Sprintf("%d:%s", r.ID, businessDate)
	_, reused, err := s.guard.Run(ctx, "nightly_debit", key, debitLockTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.executeDebit(ctx, r, businessDate, rowIDs, principal, feeTotal, totalDebit)
	})
	if err != nil {
		if errors.Is(err, idempotencydomain.ErrInProgress) {
			s.log.Info("nightly debit already in progress, skipping",
				zap.String("key", key),
			)
			return false, nil
		}
		return false, err
	}
	if reused {
		return false, nil
	}
	return true, nil
}

// executeDebit commits the batch and row linkage before calling the
// provider. A crash between the two leaves a submitted batch with no
// transfer, which RunReconcileSweep later retries.
func (s *Service) executeDebit(ctx context.Context, r *restaurantdomain.Restaurant, businessDate string, rowIDs []snowflake.ID, principal, feeTotal, totalDebit int64) (json.RawMessage, error) {
	now := s.clock.Now()
	batch := &debitdomain.DebitBatch{
		ID:                  s.genID.Generate(),
		RestaurantID:        r.ID,
		BusinessDate:        businessDate,
		Status:              debitdomain.BatchStatusSubmitted,
		PrincipalTotalCents: principal,
		FeeTotalCents:       feeTotal,
		TotalDebitCents:     totalDebit,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.batchRepo.InsertBatch(ctx, tx, batch)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.batchRepo.FindBatch(ctx, tx, r.ID, businessDate)
			if err != nil {
				return err
			}
			batch = existing
		}
		return s.settlementRepo.LinkToBatch(ctx, tx, rowIDs, batch.ID)
	})
	if err != nil {
		return nil, err
	}

	result, err := s.adapters.Payout.CreateTransfer(ctx, providerdomain.TransferRequest{
		Source:      r.DebitMethodID,
		Destination: s.cfg.PlatformMethodID,
		AmountCents: totalDebit,
		Currency:    "USD",
		Metadata: map[string]string{
			"kind":          "nightly_debit",
			"restaurant_id": r.ID.String(),
			"business_date": businessDate,
		},
		IdempotencyKey: fmt.Sprintf("nightly-debit-%d-%s", r.ID, businessDate),
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordBatchTransfer(ctx, batch, result, totalDebit, r.DebitMethodID); err != nil {
		return nil, err
	}

	s.log.Info("nightly debit submitted",
		zap.Int64("restaurant_id", int64(r.ID)),
		zap.String("business_date", businessDate),
		zap.Int64("total_debit_cents", totalDebit),
		zap.Int("row_count", len(rowIDs)),
		zap.String("provider_transfer_id", result.TransferID),
	)

	return json.Marshal(debitResult{
		BatchID:            batch.ID,
		ProviderTransferID: result.TransferID,
		TotalDebitCents:    totalDebit,
		RowCount:           len(rowIDs),
	})
}

func (s *Service) recordBatchTransfer(ctx context.Context, batch *debitdomain.DebitBatch, result *providerdomain.TransferResult, amountCents int64, sourceRef string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &transferdomain.Transfer{
			ID:                 s.genID.Generate(),
			TransferType:       transferdomain.TypeRestaurantDebit,
			ProviderTransferID: result.TransferID,
			Status:             transferdomain.StatusPending,
			AmountCents:        amountCents,
			Currency:           "USD",
			SourceRef:          sourceRef,
			DestinationRef:     s.cfg.PlatformMethodID,
			ReferenceType:      transferdomain.ReferenceDebitBatch,
			ReferenceID:        batch.ID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.transferRepo.Insert(ctx, tx, record); err != nil {
			return err
		}
		return s.batchRepo.SetProviderTransfer(ctx, tx, batch.ID, result.TransferID, debitdomain.BatchStatusSubmitted, now)
	})
}

// RunReconcileSweep retries transfer creation for submitted batches
// that never got a provider transfer, which happens when a nightly run
// crashed between committing the batch and calling the provider. The
// provider-side idempotency key makes the retry safe even if the
// original request actually went through.
func (s *Service) RunReconcileSweep(ctx context.Context) (int, error) {
	before := s.clock.Now().Add(-reconcileAge)
	batches, err := s.batchRepo.ListSubmittedWithoutTransfer(ctx, s.db, before, reconcileLimit)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for i := range batches {
		if err := s.reconcileBatch(ctx, &batches[i]); err != nil {
			errs = append(errs, fmt.Errorf("batch %d: %w", batches[i].ID, err))
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *Service) reconcileBatch(ctx context.Context, batch *debitdomain.DebitBatch) error {
	r, err := s.restaurantRepo.FindRestaurant(ctx, s.db, batch.RestaurantID)
	if err != nil {
		return err
	}

	result, err := s.adapters.Payout.CreateTransfer(ctx, providerdomain.TransferRequest{
		Source:      r.DebitMethodID,
		Destination: s.cfg.PlatformMethodID,
		AmountCents: batch.TotalDebitCents,
		Currency:    "USD",
		Metadata: map[string]string{
			"kind":          "nightly_debit",
			"restaurant_id": r.ID.String(),
			"business_date": batch.BusinessDate,
		},
		IdempotencyKey: fmt.Sprintf("nightly-debit-%d-%s", r.ID, batch.BusinessDate),
	})
	if err != nil {
		return err
	}

	if err := s.recordBatchTransfer(ctx, batch, result, batch.TotalDebitCents, r.DebitMethodID); err != nil {
		return err
	}

	s.log.Warn("reconciled debit batch without provider transfer",
		zap.Int64("batch_id", int64(batch.ID)),
		zap.String("business_date", batch.BusinessDate),
		zap.String("provider_transfer_id", result.TransferID),
	)
	return nil
}

// RetryBatch re-attempts the provider transfer for one batch. Called
// from the admin surface; errors are returned inline to the caller.
func (s *Service) RetryBatch(ctx context.Context, restaurantID snowflake.ID, businessDate string) error {
	batch, err := s.batchRepo.FindBatch(ctx, s.db, restaurantID, businessDate)
	if err != nil {
		return err
	}
	if batch.ProviderTransferID != nil && *batch.ProviderTransferID != "" {
		return nil
	}
	return s.reconcileBatch(ctx, batch)
}
