package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/tipwave/tipwave/internal/billing/domain"
	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/config"
	debitdomain "github.com/tipwave/tipwave/internal/debit/domain"
	payoutdomain "github.com/tipwave/tipwave/internal/payout/domain"
	settlementdomain "github.com/tipwave/tipwave/internal/settlement/domain"
	transferdomain "github.com/tipwave/tipwave/internal/transfer/domain"
	webhookdomain "github.com/tipwave/tipwave/internal/webhook/domain"
)

const collectRetryBackoff = 6 * time.Hour

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         *config.Config
	EventRepo      webhookdomain.Repository
	TransferRepo   transferdomain.Repository
	BatchRepo      debitdomain.Repository
	PayoutRepo     payoutdomain.Repository
	SettlementRepo settlementdomain.Repository
	ChargeRepo     billingdomain.Repository
}

// Reconciler verifies, dedups and dispatches provider callbacks into
// the local transfer, batch, payout and billing records.
type Reconciler struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	cfg            *config.Config
	eventRepo      webhookdomain.Repository
	transferRepo   transferdomain.Repository
	batchRepo      debitdomain.Repository
	payoutRepo     payoutdomain.Repository
	settlementRepo settlementdomain.Repository
	chargeRepo     billingdomain.Repository

	handlers map[webhookdomain.EventKind]func(ctx context.Context, envelope *webhookdomain.Envelope) error
}

func NewReconciler(p Params) *Reconciler {
	r := &Reconciler{
		db:             p.DB,
		log:            p.Log.Named("webhook.reconciler"),
		genID:          p.GenID,
		clock:          p.Clock,
		cfg:            p.Config,
		eventRepo:      p.EventRepo,
		transferRepo:   p.TransferRepo,
		batchRepo:      p.BatchRepo,
		payoutRepo:     p.PayoutRepo,
		settlementRepo: p.SettlementRepo,
		chargeRepo:     p.ChargeRepo,
	}
	r.handlers = map[webhookdomain.EventKind]func(ctx context.Context, envelope *webhookdomain.Envelope) error{
		webhookdomain.KindTransferCompleted:    r.handleTransferCompleted,
		webhookdomain.KindTransferFailed:       r.handleTransferFailed,
		webhookdomain.KindInvoicePaid:          r.handleInvoicePaid,
		webhookdomain.KindInvoicePaymentFailed: r.handleInvoicePaymentFailed,
	}
	return r
}

// Process ingests one raw callback. ErrInvalidSignature and
// ErrSecretUnconfigured map to error responses at the HTTP layer;
// everything past signature verification is acked to the provider and
// any processing failure is only logged by the caller.
func (r *Reconciler) Process(ctx context.Context, provider string, payload []byte, signatureHeader string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	if r.cfg.WebhookVerifyDisabled {
		r.log.Warn("webhook signature verification disabled",
			zap.String("provider", provider),
		)
	} else {
		if len(r.cfg.WebhookSecrets) == 0 {
			return webhookdomain.ErrSecretUnconfigured
		}
		tolerance := time.Duration(r.cfg.WebhookToleranceSeconds) * time.Second
		if err := verifySignature(payload, signatureHeader, r.cfg.WebhookSecrets, tolerance, r.clock.Now()); err != nil {
			return err
		}
	}

	var envelope webhookdomain.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return webhookdomain.ErrInvalidPayload
	}

	hash, err := eventHash(envelope.ID, payload)
	if err != nil {
		return webhookdomain.ErrInvalidPayload
	}

	event := &webhookdomain.WebhookEvent{
		ID:          r.genID.Generate(),
		Provider:    provider,
		EventID:     envelope.ID,
		EventType:   envelope.Type,
		PayloadHash: hash,
		Payload:     string(payload),
		ReceivedAt:  r.clock.Now(),
	}
	inserted, err := r.eventRepo.InsertEvent(ctx, r.db, event)
	if err != nil {
		return err
	}
	if !inserted {
		return webhookdomain.ErrDuplicateEvent
	}

	kind := webhookdomain.ParseEventKind(envelope.Type)
	handler, ok := r.handlers[kind]
	if !ok {
		r.log.Info("ignoring unknown webhook event type",
			zap.String("provider", provider),
			zap.String("event_type", envelope.Type),
			zap.String("event_id", envelope.ID),
		)
		return r.eventRepo.MarkProcessed(ctx, r.db, event.ID)
	}

	if err := handler(ctx, &envelope); err != nil {
		return err
	}
	return r.eventRepo.MarkProcessed(ctx, r.db, event.ID)
}

// eventHash anchors dedup on the provider event ID when one is given,
// falling back to a canonical re-encoding of the payload so formatting
// differences do not defeat the unique index.
func eventHash(eventID string, payload []byte) (string, error) {
	if eventID != "" {
		sum := sha256.Sum256([]byte(eventID))
		return hex.EncodeToString(sum[:]), nil
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (r *Reconciler) handleTransferCompleted(ctx context.Context, envelope *webhookdomain.Envelope) error {
	return r.resolveTransfer(ctx, envelope, transferdomain.StatusCompleted, "")
}

func (r *Reconciler) handleTransferFailed(ctx context.Context, envelope *webhookdomain.Envelope) error {
	reason := envelope.Data.FailureReason
	if reason == "" {
		reason = "transfer failed at provider"
	}
	return r.resolveTransfer(ctx, envelope, transferdomain.StatusFailed, reason)
}

func (r *Reconciler) resolveTransfer(ctx context.Context, envelope *webhookdomain.Envelope, status string, failureReason string) error {
	providerTransferID := envelope.Data.TransferID
	if providerTransferID == "" {
		return webhookdomain.ErrInvalidPayload
	}

	record, err := r.transferRepo.FindByProviderTransferID(ctx, r.db, providerTransferID)
	if errors.Is(err, transferdomain.ErrTransferNotFound) {
		r.log.Warn("webhook for unknown transfer",
			zap.String("provider_transfer_id", providerTransferID),
			zap.String("event_id", envelope.ID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	now := r.clock.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.transferRepo.UpdateStatus(ctx, tx, record.ID, status, now); err != nil {
			return err
		}
		switch record.ReferenceType {
		case transferdomain.ReferenceDebitBatch:
			batchStatus := debitdomain.BatchStatusCompleted
			if status == transferdomain.StatusFailed {
				batchStatus = debitdomain.BatchStatusFailed
			}
			return r.batchRepo.UpdateStatus(ctx, tx, record.ReferenceID, batchStatus, now)
		case transferdomain.ReferencePayoutItem:
			itemStatus := payoutdomain.ItemStatusCompleted
			rowStatus := settlementdomain.PayoutStatusCompleted
			var reason *string
			if status == transferdomain.StatusFailed {
				itemStatus = payoutdomain.ItemStatusFailed
				rowStatus = settlementdomain.PayoutStatusFailed
				reason = &failureReason
			}
			item, err := r.payoutRepo.FindItemByID(ctx, tx, record.ReferenceID)
			if err != nil {
				return err
			}
			if err := r.payoutRepo.UpdateItemStatus(ctx, tx, item.ID, itemStatus, now); err != nil {
				return err
			}
			return r.settlementRepo.SetPayoutStatus(ctx, tx, item.SettlementRowID, rowStatus, reason, now)
		}
		return nil
	})
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, envelope *webhookdomain.Envelope) error {
	charge, err := r.findCharge(ctx, envelope)
	if err != nil || charge == nil {
		return err
	}
	return r.chargeRepo.SetPaymentStatus(ctx, r.db, charge.ID, billingdomain.PaymentStatusPaid, nil, r.clock.Now())
}

func (r *Reconciler) handleInvoicePaymentFailed(ctx context.Context, envelope *webhookdomain.Envelope) error {
	charge, err := r.findCharge(ctx, envelope)
	if err != nil || charge == nil {
		return err
	}
	now := r.clock.Now()
	retryAt := now.Add(collectRetryBackoff)
	return r.chargeRepo.SetPaymentStatus(ctx, r.db, charge.ID, billingdomain.PaymentStatusFailed, &retryAt, now)
}

func (r *Reconciler) findCharge(ctx context.Context, envelope *webhookdomain.Envelope) (*billingdomain.MonthlyFeeCharge, error) {
	invoiceID := envelope.Data.InvoiceID
	if invoiceID == "" {
		return nil, webhookdomain.ErrInvalidPayload
	}
	charge, err := r.chargeRepo.FindChargeByInvoiceID(ctx, r.db, invoiceID)
	if errors.Is(err, billingdomain.ErrChargeNotFound) {
		r.log.Warn("webhook for unknown invoice",
			zap.String("invoice_id", invoiceID),
			zap.String("event_id", envelope.ID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return charge, nil
}
