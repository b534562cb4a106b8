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
	"github.com/tipwave/tipwave/internal/idempotency"
	idempotencydomain "github.com/tipwave/tipwave/internal/idempotency/domain"
	payoutdomain "github.com/tipwave/tipwave/internal/payout/domain"
	"github.com/tipwave/tipwave/internal/provider"
	providerdomain "github.com/tipwave/tipwave/internal/provider/domain"
	restaurantdomain "github.com/tipwave/tipwave/internal/restaurant/domain"
	settlementdomain "github.com/tipwave/tipwave/internal/settlement/domain"
	transferdomain "github.com/tipwave/tipwave/internal/transfer/domain"
	"github.com/tipwave/tipwave/pkg/db"
)

const (
	payoutLockTTL = 10 * time.Minute
	disburseLimit = 500

	// verificationAge keeps the retry sweep from hammering accounts
	// that were parked moments ago.
	verificationAge   = time.Hour
	verificationLimit = 100
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
	PayoutRepo     payoutdomain.Repository
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
	payoutRepo     payoutdomain.Repository
	transferRepo   transferdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payout.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		cfg:            p.Config,
		guard:          p.Guard,
		adapters:       p.Adapters,
		restaurantRepo: p.RestaurantRepo,
		settlementRepo: p.SettlementRepo,
		payoutRepo:     p.PayoutRepo,
		transferRepo:   p.TransferRepo,
	}
}

type payoutResult struct {
	PayoutItemID       snowflake.ID `json:"payout_item_id"`
	ProviderTransferID string       `json:"provider_transfer_id"`
	TransferCents      int64        `json:"transfer_cents"`
	Rail               string       `json:"rail"`
}

// RunDisbursement pays employees whose debit batch has settled. Rows
// are processed independently; one employee's error never aborts the
// siblings in the same run.
func (s *Service) RunDisbursement(ctx context.Context) (int, error) {
	rows, err := s.settlementRepo.ListPayable(ctx, s.db, disburseLimit)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for i := range rows {
		if err := s.disburseRow(ctx, &rows[i]); err != nil {
			errs = append(errs, fmt.Errorf("settlement row %d: %w", rows[i].ID, err))
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *Service) disburseRow(ctx context.Context, row *settlementdomain.SettlementRow) error {
	now := s.clock.Now()

	r, err := s.restaurantRepo.FindRestaurant(ctx, s.db, row.RestaurantID)
	if err != nil {
		return err
	}

	gross := row.NetPayoutCents
	net := computeNet(gross, r.PayoutFeeCents, r.FeePayer)
	if r.FeePayer == restaurantdomain.FeePayerEmployee && net <= 0 {
		reason := fmt.Sprintf("net %d cents not positive after %d cent fee", net, r.PayoutFeeCents)
		return s.settlementRepo.SetPayoutStatus(ctx, s.db, row.ID, settlementdomain.PayoutStatusInsufficientAfterFee, &reason, now)
	}

	effective := gross
	if r.FeePayer == restaurantdomain.FeePayerEmployee {
		effective = net
	}

	account, err := s.restaurantRepo.FindEmployeeAccount(ctx, s.db, row.EmployeeGUID)
	if errors.Is(err, restaurantdomain.ErrEmployeeAccountNotFound) || (err == nil && !account.Linked()) {
		return s.settlementRepo.SetPayoutStatus(ctx, s.db, row.ID, settlementdomain.PayoutStatusNoAccount, nil, now)
	}
	if err != nil {
		return err
	}

	ready, err := s.adapters.Payout.VerifyCapabilities(ctx, account.ProviderAccountID, []string{providerdomain.CapabilityReceiveFunds})
	if err != nil {
		return err
	}
	if !ready {
		reason := "account lacks receive-funds capability"
		return s.settlementRepo.SetPayoutStatus(ctx, s.db, row.ID, settlementdomain.PayoutStatusPendingVerification, &reason, now)
	}

	rail := selectRail(effective, r.InstantThresholdCents, account.MethodType)

	carry, err := s.payoutRepo.CarryForward(ctx, s.db, row.EmployeeGUID, row.RestaurantID)
	if err != nil {
		return err
	}

	transferCents := effective + carry - r.RailFeeCents(rail)
	if transferCents <= 0 {
		newCarry := effective + carry
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.payoutRepo.SetCarryForward(ctx, tx, row.EmployeeGUID, row.RestaurantID, newCarry, now); err != nil {
				return err
			}
			return s.settlementRepo.SetPayoutStatus(ctx, tx, row.ID, settlementdomain.PayoutStatusCarriedForward, nil, now)
		})
		if err != nil {
			return err
		}
		s.log.Info("payout carried forward",
			zap.Int64("settlement_row_id", int64(row.ID)),
			zap.String("employee_guid", row.EmployeeGUID),
			zap.Int64("carry_forward_cents", newCarry),
		)
		return nil
	}

	_, _, err = s.guard.Run(ctx, "payout_item", row.ID.String(), payoutLockTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.executePayout(ctx, r, row, account, gross, net, rail, carry, transferCents)
	})
	if errors.Is(err, idempotencydomain.ErrInProgress) {
		s.log.Info("payout already in progress, skipping",
			zap.Int64("settlement_row_id", int64(row.ID)),
		)
		return nil
	}
	return err
}

func (s *Service) executePayout(ctx context.Context, r *restaurantdomain.Restaurant, row *settlementdomain.SettlementRow, account *restaurantdomain.EmployeeAccount, gross, net int64, rail string, carry, transferCents int64) (json.RawMessage, error) {
	now := s.clock.Now()

	item := &payoutdomain.PayoutItem{
		ID:               s.genID.Generate(),
		RestaurantID:     row.RestaurantID,
		EmployeeGUID:     row.EmployeeGUID,
		SettlementRowID:  row.ID,
		GrossCents:       gross,
		NetCents:         net,
		FeeCentsSnapshot: r.PayoutFeeCents,
		FeePayerSnapshot: r.FeePayer,
		Rail:             rail,
		Status:           payoutdomain.ItemStatusSubmitted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.payoutRepo.InsertItem(ctx, s.db, item); err != nil {
		// A reclaimed lock can replay this step after a crash; reuse
		// the item the first attempt already recorded.
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		item, err = s.payoutRepo.FindItemBySettlementRow(ctx, s.db, row.ID)
		if err != nil {
			return nil, err
		}
	}

	result, err := s.adapters.Payout.CreateTransfer(ctx, providerdomain.TransferRequest{
		Source:      s.cfg.PlatformMethodID,
		Destination: account.MethodID,
		AmountCents: transferCents,
		Currency:    "USD",
		Rail:        rail,
		Metadata: map[string]string{
			"kind":              "employee_payout",
			"settlement_row_id": row.ID.String(),
			"employee_guid":     row.EmployeeGUID,
		},
		IdempotencyKey: fmt.Sprintf("payout-%d", row.ID),
	})
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &transferdomain.Transfer{
			ID:                 s.genID.Generate(),
			TransferType:       transferdomain.TypeEmployeePayout,
			ProviderTransferID: result.TransferID,
			Status:             transferdomain.StatusPending,
			AmountCents:        transferCents,
			Currency:           "USD",
			SourceRef:          s.cfg.PlatformMethodID,
			DestinationRef:     account.MethodID,
			ReferenceType:      transferdomain.ReferencePayoutItem,
			ReferenceID:        item.ID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.transferRepo.Insert(ctx, tx, record); err != nil {
			return err
		}
		if err := s.payoutRepo.SetItemTransfer(ctx, tx, item.ID, result.TransferID, now); err != nil {
			return err
		}
		if carry != 0 {
			if err := s.payoutRepo.SetCarryForward(ctx, tx, row.EmployeeGUID, row.RestaurantID, 0, now); err != nil {
				return err
			}
		}
		return s.settlementRepo.LinkPayoutItem(ctx, tx, row.ID, item.ID, settlementdomain.PayoutStatusSubmitted, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout submitted",
		zap.Int64("settlement_row_id", int64(row.ID)),
		zap.String("employee_guid", row.EmployeeGUID),
		zap.Int64("transfer_cents", transferCents),
		zap.String("rail", rail),
		zap.String("provider_transfer_id", result.TransferID),
	)

	return json.Marshal(payoutResult{
		PayoutItemID:       item.ID,
		ProviderTransferID: result.TransferID,
		TransferCents:      transferCents,
		Rail:               rail,
	})
}

// RunVerificationRetry re-checks parked rows whose employee account was
// still under provider verification. Cleared rows re-enter the normal
// disbursement query on its next run; no transfers happen here.
func (s *Service) RunVerificationRetry(ctx context.Context) (int, error) {
	before := s.clock.Now().Add(-verificationAge)
	rows, err := s.settlementRepo.ListPendingVerification(ctx, s.db, before, verificationLimit)
	if err != nil {
		return 0, err
	}

	var errs []error
	cleared := 0
	for i := range rows {
		row := &rows[i]
		account, err := s.restaurantRepo.FindEmployeeAccount(ctx, s.db, row.EmployeeGUID)
		if errors.Is(err, restaurantdomain.ErrEmployeeAccountNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("settlement row %d: %w", row.ID, err))
			continue
		}
		ready, err := s.adapters.Payout.VerifyCapabilities(ctx, account.ProviderAccountID, []string{providerdomain.CapabilityReceiveFunds})
		if err != nil {
			errs = append(errs, fmt.Errorf("settlement row %d: %w", row.ID, err))
			continue
		}
		if !ready {
			continue
		}
		if err := s.settlementRepo.ClearPayoutStatus(ctx, s.db, row.ID, s.clock.Now()); err != nil {
			errs = append(errs, fmt.Errorf("settlement row %d: %w", row.ID, err))
			continue
		}
		cleared++
	}
	return cleared, errors.Join(errs...)
}

// RetrySettlementRow force-retries one parked or failed row. Called
// from the admin surface; errors are returned inline to the caller.
func (s *Service) RetrySettlementRow(ctx context.Context, rowID snowflake.ID) error {
	row, err := s.settlementRepo.FindRow(ctx, s.db, rowID)
	if err != nil {
		return err
	}
	if row.PayoutItemID != nil {
		return nil
	}
	if row.PayoutStatus != nil && *row.PayoutStatus != "" {
		if err := s.settlementRepo.ClearPayoutStatus(ctx, s.db, row.ID, s.clock.Now()); err != nil {
			return err
		}
		row.PayoutStatus = nil
		row.FailureReason = nil
	}
	return s.disburseRow(ctx, row)
}
