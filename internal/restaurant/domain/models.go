package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	FeePayerRestaurant = "restaurant"
	FeePayerEmployee   = "employee"
)

// Payout rails. Instant settles over RTP or push-to-card, same-day ACH
// is the fallback for accounts that cannot receive instant funds.
const (
	RailInstant    = "instant"
	RailSameDayACH = "same_day_ach"
)

type Restaurant struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	Name                  string       `json:"name" gorm:"type:text;not null"`
	Timezone              string       `json:"timezone" gorm:"type:text;not null;default:UTC"`
	FeePayer              string       `json:"fee_payer" gorm:"type:text;not null"`
	PayoutFeeCents        int64        `json:"payout_fee_cents" gorm:"not null"`
	InstantThresholdCents int64        `json:"instant_threshold_cents" gorm:"not null"`
	InstantFeeCents       int64        `json:"instant_fee_cents" gorm:"not null"`
	ACHFeeCents           int64        `json:"ach_fee_cents" gorm:"column:ach_fee_cents;not null"`
	MonthlyFeeCents       int64        `json:"monthly_fee_cents" gorm:"not null"`
	BillingDay            int          `json:"billing_day" gorm:"not null"`
	ProviderAccountID     string       `json:"provider_account_id" gorm:"type:text;not null"`
	BillingCustomerID     string       `json:"billing_customer_id" gorm:"type:text;not null"`
	DebitMethodID         string       `json:"debit_method_id" gorm:"type:text;not null"`
	BillingMethodID       string       `json:"billing_method_id" gorm:"type:text;not null"`
	CreatedAt             time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time    `json:"updated_at" gorm:"not null"`
}

func (Restaurant) TableName() string { return "restaurants" }

// RailFeeCents is the per-payout provider cost of moving funds on the
// given rail, from the restaurant's negotiated fee schedule.
func (r *Restaurant) RailFeeCents(rail string) int64 {
	if rail == RailInstant {
		return r.InstantFeeCents
	}
	return r.ACHFeeCents
}

// Location resolves the restaurant's IANA timezone, falling back to UTC
// when the stored name does not load.
func (r *Restaurant) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type EmployeeAccount struct {
	EmployeeGUID      string    `json:"employee_guid" gorm:"primaryKey;type:text"`
	ProviderAccountID string    `json:"provider_account_id" gorm:"type:text;not null"`
	MethodID          string    `json:"method_id" gorm:"type:text;not null"`
	MethodType        string    `json:"method_type" gorm:"type:text;not null"`
	CreatedAt         time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"not null"`
}

func (EmployeeAccount) TableName() string { return "employee_accounts" }

// Linked reports whether the employee finished provider onboarding and
// has a destination we can pay.
func (a *EmployeeAccount) Linked() bool {
	return a != nil && a.ProviderAccountID != "" && a.MethodID != ""
}

var (
	ErrRestaurantNotFound      = errors.New("restaurant_not_found")
	ErrEmployeeAccountNotFound = errors.New("employee_account_not_found")
)

type Repository interface {
	FindRestaurant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Restaurant, error)
	ListRestaurants(ctx context.Context, db *gorm.DB) ([]Restaurant, error)
	FindEmployeeAccount(ctx context.Context, db *gorm.DB, employeeGUID string) (*EmployeeAccount, error)
}
