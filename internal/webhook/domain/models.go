package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// EventKind is the closed set of provider callbacks the reconciler
// understands. Anything else is recorded and ignored.
type EventKind string

const (
	KindTransferCompleted    EventKind = "transfer.completed"
	KindTransferFailed       EventKind = "transfer.failed"
	KindInvoicePaid          EventKind = "invoice.paid"
	KindInvoicePaymentFailed EventKind = "invoice.payment_failed"
	KindUnknown              EventKind = ""
)

func ParseEventKind(eventType string) EventKind {
	switch EventKind(eventType) {
	case KindTransferCompleted, KindTransferFailed, KindInvoicePaid, KindInvoicePaymentFailed:
		return EventKind(eventType)
	}
	return KindUnknown
}

// Envelope is the provider-agnostic shape of an incoming callback.
type Envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		TransferID    string `json:"transfer_id"`
		InvoiceID     string `json:"invoice_id"`
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason"`
	} `json:"data"`
}

// WebhookEvent is the append-only dedup anchor for received callbacks.
type WebhookEvent struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Provider    string       `json:"provider" gorm:"type:text;not null"`
	EventID     string       `json:"event_id" gorm:"type:text;not null"`
	EventType   string       `json:"event_type" gorm:"type:text;not null"`
	PayloadHash string       `json:"payload_hash" gorm:"type:text;not null"`
	Payload     string       `json:"payload" gorm:"type:text;not null"`
	Processed   bool         `json:"processed" gorm:"not null"`
	ReceivedAt  time.Time    `json:"received_at" gorm:"not null"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

var (
	ErrInvalidSignature   = errors.New("invalid_webhook_signature")
	ErrSecretUnconfigured = errors.New("webhook_secret_unconfigured")
	ErrDuplicateEvent     = errors.New("duplicate_webhook_event")
	ErrInvalidPayload     = errors.New("invalid_webhook_payload")
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
