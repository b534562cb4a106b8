package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record arbitrates once-only execution per (scope, key). The unique
// constraint on (scope, idem_key) is the cross-process mutual-exclusion
// primitive; completed records are permanent and replay-safe.
type Record struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	Scope       string         `gorm:"column:scope;type:text;not null"`
	Key         string         `gorm:"column:idem_key;type:text;not null"`
	Status      Status         `gorm:"type:text;not null"`
	LockedAt    time.Time      `gorm:"not null"`
	CompletedAt *time.Time     ``
	Result      datatypes.JSON ``
	ErrorText   *string        ``
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

func (Record) TableName() string { return "idempotency_records" }

var (
	// ErrInProgress is returned when another caller holds a live
	// processing lock for the same (scope, key).
	ErrInProgress = errors.New("idempotency_operation_in_progress")
)
