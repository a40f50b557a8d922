package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

// AdminStats summarizes the whole marketplace.
type AdminStats struct {
	TotalCategories int64 `json:"total_categories"`
	TotalItems      int64 `json:"total_items"`
	TotalOrders     int64 `json:"total_orders"`
	TotalPayments   int64 `json:"total_payments"`
}

// UserStats summarizes one customer's activity. TotalSpend only counts
// settled payments.
type UserStats struct {
	TotalOrders int64           `json:"total_orders"`
	TotalSpend  decimal.Decimal `json:"total_spend"`
}

type Service interface {
	AdminStats(ctx context.Context, actor auth.Actor) (*AdminStats, error)
	UserStats(ctx context.Context, actor auth.Actor) (*UserStats, error)
}

type service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &service{db: db}, nil
}

func (s *service) AdminStats(ctx context.Context, actor auth.Actor) (*AdminStats, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var stats AdminStats
	counts := []struct {
		model any
		where string
		args  []any
		dest  *int64
	}{
		{&models.Category{}, "", nil, &stats.TotalCategories},
		{&models.Item{}, "", nil, &stats.TotalItems},
		{&models.Order{}, "", nil, &stats.TotalOrders},
		{&models.Payment{}, "status = ?", []any{enums.PaymentStatusSucceeded}, &stats.TotalPayments},
	}
	for _, c := range counts {
		query := s.db.WithContext(ctx).Model(c.model)
		if c.where != "" {
			query = query.Where(c.where, c.args...)
		}
		if err := query.Count(c.dest).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count dashboard totals")
		}
	}
	return &stats, nil
}

func (s *service) UserStats(ctx context.Context, actor auth.Actor) (*UserStats, error) {
	if !actor.Valid() || actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	var stats UserStats
	if err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", actor.UserID).
		Count(&stats.TotalOrders).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count user orders")
	}

	// summed in Go so numeric and text decimal columns behave the same
	var amounts []decimal.Decimal
	if err := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("user_id = ? AND status = ?", actor.UserID, enums.PaymentStatusSucceeded).
		Pluck("amount", &amounts).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum user payments")
	}
	stats.TotalSpend = decimal.Sum(decimal.Zero, amounts...)
	return &stats, nil
}
