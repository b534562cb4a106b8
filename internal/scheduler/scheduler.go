package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	billingservice "github.com/tipwave/tipwave/internal/billing/service"
	"github.com/tipwave/tipwave/internal/clock"
	debitservice "github.com/tipwave/tipwave/internal/debit/service"
	obsmetrics "github.com/tipwave/tipwave/internal/observability/metrics"
	payoutservice "github.com/tipwave/tipwave/internal/payout/service"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

// Job names, as emitted in logs and metrics.
const (
	JobNightlyDebit      = "nightly_debit"
	JobDebitReconcile    = "debit_reconcile"
	JobPayoutDisburse    = "payout_disburse"
	JobVerificationRetry = "verification_retry"
	JobMonthlyInvoice    = "monthly_invoice"
	JobCollectRetry      = "collect_retry"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	DebitSvc   *debitservice.Service
	PayoutSvc  *payoutservice.Service
	BillingSvc *billingservice.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

// Scheduler drives the pipeline's periodic jobs from one process. Jobs
// run sequentially per tick; cross-process safety comes from the
// idempotency guard inside each job, not from scheduler locking.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	debitSvc   *debitservice.Service
	payoutSvc  *payoutservice.Service
	billingSvc *billingservice.Service
	metrics    *obsmetrics.Metrics
}

type jobEntry struct {
	name string
	fn   func(ctx context.Context) (int, error)
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.DebitSvc == nil || p.PayoutSvc == nil || p.BillingSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		debitSvc:   p.DebitSvc,
		payoutSvc:  p.PayoutSvc,
		billingSvc: p.BillingSvc,
		metrics:    p.Metrics,
	}, nil
}

func (s *Scheduler) jobs() []jobEntry {
	return []jobEntry{
		{JobNightlyDebit, s.debitSvc.RunNightlyDebit},
		{JobDebitReconcile, s.debitSvc.RunReconcileSweep},
		{JobPayoutDisburse, s.payoutSvc.RunDisbursement},
		{JobVerificationRetry, s.payoutSvc.RunVerificationRetry},
		{JobMonthlyInvoice, s.billingSvc.RunMonthlyInvoice},
		{JobCollectRetry, s.billingSvc.RunCollectRetry},
	}
}

// RunOnce executes every enabled job sequentially. Job-level errors are
// logged and counted but never abort the remaining jobs.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, entry := range s.jobs() {
		if !s.cfg.jobEnabled(entry.name) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, entry.name, entry.fn)
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	run := s.newJobRun(name)
	s.logJobStart(run)

	processed, err := fn(ctx)
	run.processedCount = processed
	duration := s.clock.Now().Sub(run.startedAt)

	s.metrics.ObserveJobRun(name, duration, processed, err)
	s.logJobFinish(run, duration, err)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
