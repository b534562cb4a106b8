package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tipwave/tipwave/internal/clock"
	"github.com/tipwave/tipwave/internal/idempotency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

// Guard executes an action at most once per (scope, key). Concurrent and
// retried callers converge on the single stored outcome.
type Guard struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewGuard(p Params) *Guard {
	return &Guard{
		db:    p.DB,
		log:   p.Log.Named("idempotency"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Action produces the serialized result persisted on the idempotency record.
type Action func(ctx context.Context) (json.RawMessage, error)

// Run attempts to claim (scope, key) and invoke fn.
//
// Returns (result, reused=true, nil) when a prior run already completed;
// fn is not re-invoked. A processing record younger than lockTTL yields
// domain.ErrInProgress. A stale processing record (crashed prior attempt)
// or a failed record is reclaimed and fn re-executed.
func (g *Guard) Run(ctx context.Context, scope string, key string, lockTTL time.Duration, fn Action) (json.RawMessage, bool, error) {
	now := g.clock.Now()

	claimed, err := g.insertPlaceholder(ctx, scope, key, now)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		record, err := g.loadRecord(ctx, scope, key)
		if err != nil {
			return nil, false, err
		}
		if record == nil {
			return nil, false, domain.ErrInProgress
		}

		switch record.Status {
		case domain.StatusCompleted:
			return json.RawMessage(record.Result), true, nil
		case domain.StatusProcessing:
			if now.Sub(record.LockedAt) < lockTTL {
				return nil, false, domain.ErrInProgress
			}
			reclaimed, err := g.reclaimLock(ctx, scope, key, domain.StatusProcessing, record.LockedAt, now)
			if err != nil {
				return nil, false, err
			}
			if !reclaimed {
				return nil, false, domain.ErrInProgress
			}
			g.log.Warn("reclaimed stale idempotency lock",
				zap.String("scope", scope),
				zap.String("key", key),
				zap.Time("locked_at", record.LockedAt),
			)
		case domain.StatusFailed:
			reclaimed, err := g.reclaimLock(ctx, scope, key, domain.StatusFailed, record.LockedAt, now)
			if err != nil {
				return nil, false, err
			}
			if !reclaimed {
				return nil, false, domain.ErrInProgress
			}
		default:
			return nil, false, domain.ErrInProgress
		}
	}

	result, runErr := fn(ctx)
	if runErr != nil {
		if markErr := g.markFailed(ctx, scope, key, runErr); markErr != nil {
			g.log.Error("failed to mark idempotency record failed",
				zap.String("scope", scope),
				zap.String("key", key),
				zap.Error(markErr),
			)
		}
		return nil, false, runErr
	}

	if err := g.markCompleted(ctx, scope, key, result); err != nil {
		return nil, false, err
	}
	return result, false, nil
}

func (g *Guard) insertPlaceholder(ctx context.Context, scope, key string, now time.Time) (bool, error) {
	res := g.db.WithContext(ctx).Exec(
		`INSERT INTO idempotency_records (
			id, scope, idem_key, status, locked_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, idem_key) DO NOTHING`,
		g.genID.Generate(),
		scope,
		key,
		domain.StatusProcessing,
		now,
		now,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *Guard) loadRecord(ctx context.Context, scope, key string) (*domain.Record, error) {
	var record domain.Record
	err := g.db.WithContext(ctx).Raw(
		`SELECT id, scope, idem_key, status, locked_at, completed_at, result, error_text, created_at, updated_at
		 FROM idempotency_records
		 WHERE scope = ? AND idem_key = ?
		 LIMIT 1`,
		scope,
		key,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// reclaimLock flips a record back to processing only if nobody else got
// there first; the conditional UPDATE arbitrates racing reclaimers.
func (g *Guard) reclaimLock(ctx context.Context, scope, key string, fromStatus domain.Status, lockedAt, now time.Time) (bool, error) {
	res := g.db.WithContext(ctx).Exec(
		`UPDATE idempotency_records
		 SET status = ?, locked_at = ?, error_text = NULL, updated_at = ?
		 WHERE scope = ? AND idem_key = ? AND status = ? AND locked_at = ?`,
		domain.StatusProcessing,
		now,
		now,
		scope,
		key,
		fromStatus,
		lockedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *Guard) markCompleted(ctx context.Context, scope, key string, result json.RawMessage) error {
	now := g.clock.Now()
	return g.db.WithContext(ctx).Exec(
		`UPDATE idempotency_records
		 SET status = ?, completed_at = ?, result = ?, error_text = NULL, updated_at = ?
		 WHERE scope = ? AND idem_key = ?`,
		domain.StatusCompleted,
		now,
		string(result),
		now,
		scope,
		key,
	).Error
}

func (g *Guard) markFailed(ctx context.Context, scope, key string, cause error) error {
	if cause == nil {
		return errors.New("mark failed requires a cause")
	}
	now := g.clock.Now()
	message := cause.Error()
	// Conditional on processing so a stale holder finishing late cannot
	// clobber a record a reclaimer already completed.
	return g.db.WithContext(ctx).Exec(
		`UPDATE idempotency_records
		 SET status = ?, error_text = ?, updated_at = ?
		 WHERE scope = ? AND idem_key = ? AND status = ?`,
		domain.StatusFailed,
		message,
		now,
		scope,
		key,
		domain.StatusProcessing,
	).Error
}
