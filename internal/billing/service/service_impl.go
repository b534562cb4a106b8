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

	billingdomain "github.com/tipwave/tipwave/internal/billing/domain"
	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/idempotency"
	idempotencydomain "github.com/tipwave/tipwave/internal/idempotency/domain"
	"github.com/tipwave/tipwave/internal/provider"
	providerdomain "github.com/tipwave/tipwave/internal/provider/domain"
	restaurantdomain "github.com/tipwave/tipwave/internal/restaurant/domain"
)

const (
	invoiceLockTTL = 15 * time.Minute
	retryBackoff   = 6 * time.Hour
	retryLimit     = 100
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Guard          *idempotency.Guard
	Adapters       *provider.Adapters
	RestaurantRepo restaurantdomain.Repository
	ChargeRepo     billingdomain.Repository
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	guard          *idempotency.Guard
	adapters       *provider.Adapters
	restaurantRepo restaurantdomain.Repository
	chargeRepo     billingdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("billing.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		guard:          p.Guard,
		adapters:       p.Adapters,
		restaurantRepo: p.RestaurantRepo,
		chargeRepo:     p.ChargeRepo,
	}
}

type invoiceResult struct {
	ChargeID  snowflake.ID `json:"charge_id"`
	InvoiceID string       `json:"invoice_id"`
	Collected bool         `json:"collected"`
}

// RunMonthlyInvoice bills each restaurant whose local day-of-month
// matches its configured billing day. Collection is attempted right
// away but a collection failure never fails the invoice run; the
// charge is rescheduled for the collect-retry sweep instead.
func (s *Service) RunMonthlyInvoice(ctx context.Context) (int, error) {
	restaurants, err := s.restaurantRepo.ListRestaurants(ctx, s.db)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for i := range restaurants {
		r := &restaurants[i]
		if r.MonthlyFeeCents <= 0 {
			continue
		}
		local := s.clock.Now().In(r.Location())
		if local.Day() != r.BillingDay {
			continue
		}
		ran, err := s.invoiceRestaurant(ctx, r, local.Format("2006-01"))
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

func (s *Service) invoiceRestaurant(ctx context.Context, r *restaurantdomain.Restaurant, period string) (bool, error) {
	if r.BillingCustomerID == "" {
		s.log.Warn("restaurant missing billing customer, skipping cycle",
			zap.Int64("restaurant_id", int64(r.ID)),
			zap.String("billing_period", period),
		)
		return false, nil
	}

	key := fmt.Sprintf("%d:%s", r.ID, period)
	_, reused, err := s.guard.Run(ctx, "monthly_invoice", key, invoiceLockTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.executeInvoice(ctx, r, period)
	})
	if err != nil {
		if errors.Is(err, idempotencydomain.ErrInProgress) {
			return false, nil
		}
		return false, err
	}
	return !reused, nil
}

func (s *Service) executeInvoice(ctx context.Context, r *restaurantdomain.Restaurant, period string) (json.RawMessage, error) {
	now := s.clock.Now()
	unpaid := billingdomain.PaymentStatusUnpaid
	charge := &billingdomain.MonthlyFeeCharge{
		ID:            s.genID.Generate(),
		RestaurantID:  r.ID,
		BillingPeriod: period,
		AmountCents:   r.MonthlyFeeCents,
		PaymentStatus: &unpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := s.chargeRepo.InsertCharge(ctx, s.db, charge)
	if err != nil {
		return nil, err
	}
	if !inserted {
		charge, err = s.chargeRepo.FindCharge(ctx, s.db, r.ID, period)
		if err != nil {
			return nil, err
		}
	}

	invoice, err := s.adapters.Billing.CreateInvoice(ctx, providerdomain.InvoiceRequest{
		AccountRef:  r.BillingCustomerID,
		AmountCents: charge.AmountCents,
		Currency:    "USD",
		Memo:        fmt.Sprintf("Platform fee %s", period),
		Metadata: map[string]string{
			"restaurant_id":  r.ID.String(),
			"billing_period": period,
		},
		IdempotencyKey: fmt.Sprintf("monthly-invoice-%d-%s", r.ID, period),
	})
	if err != nil {
		return nil, err
	}
	if err := s.chargeRepo.SetInvoice(ctx, s.db, charge.ID, invoice.InvoiceID, invoice.Status, now); err != nil {
		return nil, err
	}

	collected := true
	if err := s.adapters.Billing.CollectInvoice(ctx, invoice.InvoiceID, r.BillingMethodID); err != nil {
		collected = false
		retryAt := now.Add(retryBackoff)
		if markErr := s.chargeRepo.SetPaymentStatus(ctx, s.db, charge.ID, billingdomain.PaymentStatusFailed, &retryAt, now); markErr != nil {
			return nil, markErr
		}
		s.log.Warn("invoice collection failed, rescheduled",
			zap.Int64("restaurant_id", int64(r.ID)),
			zap.String("billing_period", period),
			zap.String("invoice_id", invoice.InvoiceID),
			zap.Time("next_retry_at", retryAt),
			zap.Error(err),
		)
	}

	s.log.Info("monthly invoice created",
		zap.Int64("restaurant_id", int64(r.ID)),
		zap.String("billing_period", period),
		zap.String("invoice_id", invoice.InvoiceID),
		zap.Int64("amount_cents", charge.AmountCents),
	)

	return json.Marshal(invoiceResult{
		ChargeID:  charge.ID,
		InvoiceID: invoice.InvoiceID,
		Collected: collected,
	})
}

// RunCollectRetry sweeps unpaid charges whose backoff has elapsed and
// retries collection. Failures push the charge another backoff window
// out; success is confirmed asynchronously by the invoice webhooks.
func (s *Service) RunCollectRetry(ctx context.Context) (int, error) {
	now := s.clock.Now()
	charges, err := s.chargeRepo.ListDueForRetry(ctx, s.db, now, retryLimit)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for i := range charges {
		charge := &charges[i]
		if charge.InvoiceID == nil {
			continue
		}
		r, err := s.restaurantRepo.FindRestaurant(ctx, s.db, charge.RestaurantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("charge %d: %w", charge.ID, err))
			continue
		}
		if err := s.adapters.Billing.CollectInvoice(ctx, *charge.InvoiceID, r.BillingMethodID); err != nil {
			retryAt := s.clock.Now().Add(retryBackoff)
			if markErr := s.chargeRepo.SetPaymentStatus(ctx, s.db, charge.ID, billingdomain.PaymentStatusFailed, &retryAt, s.clock.Now()); markErr != nil {
				errs = append(errs, fmt.Errorf("charge %d: %w", charge.ID, markErr))
			}
			s.log.Warn("invoice collection retry failed",
				zap.Int64("charge_id", int64(charge.ID)),
				zap.String("invoice_id", *charge.InvoiceID),
				zap.Time("next_retry_at", retryAt),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}
