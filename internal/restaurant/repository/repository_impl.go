package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/restaurant/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const restaurantColumns = `id, name, timezone, fee_payer, payout_fee_cents,
	instant_threshold_cents, instant_fee_cents, ach_fee_cents, monthly_fee_cents,
	billing_day, provider_account_id, billing_customer_id, debit_method_id, billing_method_id,
	created_at, updated_at`

func (r *repo) FindRestaurant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Restaurant, error) {
	var item domain.Restaurant
	err := db.WithContext(ctx).Raw(
		`SELECT `+restaurantColumns+`
		 FROM restaurants
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrRestaurantNotFound
	}
	return &item, nil
}

func (r *repo) ListRestaurants(ctx context.Context, db *gorm.DB) ([]domain.Restaurant, error) {
	var items []domain.Restaurant
	err := db.WithContext(ctx).Raw(
		`SELECT ` + restaurantColumns + `
		 FROM restaurants
		 ORDER BY id`,
	).Scan(&items).Error
	return items, err
}

func (r *repo) FindEmployeeAccount(ctx context.Context, db *gorm.DB, employeeGUID string) (*domain.EmployeeAccount, error) {
	var item domain.EmployeeAccount
	err := db.WithContext(ctx).Raw(
		`SELECT employee_guid, provider_account_id, method_id, method_type, created_at, updated_at
		 FROM employee_accounts
		 WHERE employee_guid = ?
		 LIMIT 1`,
		employeeGUID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.EmployeeGUID == "" {
		return nil, domain.ErrEmployeeAccountNotFound
	}
	return &item, nil
}
