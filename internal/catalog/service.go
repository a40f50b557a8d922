package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/pagination"
)

// Service exposes category and item management plus public browsing.
type Service interface {
	ListCategories(ctx context.Context) ([]CategoryDTO, error)
	CreateCategory(ctx context.Context, actor auth.Actor, input CategoryInput) (*CategoryDTO, error)
	UpdateCategory(ctx context.Context, actor auth.Actor, id uuid.UUID, input CategoryInput) (*CategoryDTO, error)
	DeleteCategory(ctx context.Context, actor auth.Actor, id uuid.UUID) error

	ListItems(ctx context.Context, input ListItemsInput) (*ItemListResult, error)
	GetItem(ctx context.Context, id uuid.UUID) (*ItemDTO, error)
	CreateItem(ctx context.Context, actor auth.Actor, input CreateItemInput) (*ItemDTO, error)
	UpdateItem(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error)
	DeleteItem(ctx context.Context, actor auth.Actor, id uuid.UUID) error
}

type CategoryInput struct {
	Name        string
	Description *string
}

type CreateItemInput struct {
	CategoryID    uuid.UUID
	Name          string
	Description   *string
	RentPerDay    decimal.Decimal
	TotalQuantity int
	Images        []string
}

// UpdateItemInput holds optional item mutations. Nil fields are left alone.
type UpdateItemInput struct {
	CategoryID    *uuid.UUID
	Name          *string
	Description   *string
	RentPerDay    *decimal.Decimal
	TotalQuantity *int
	Images        *[]string
	Status        *enums.ItemStatus
}

// ListItemsInput captures browse filters. Inactive items are only listed
// when IncludeInactive is set by an admin caller.
type ListItemsInput struct {
	Filters         ItemFilters
	Pagination      pagination.Params
	IncludeInactive bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo *Repository
	tx   txRunner
	calc *availability.Calculator
	now  func() time.Time
	loc  *time.Location
}

// NewService constructs the catalog service. now and loc decide which day
// available_quantity is reported for.
func NewService(repo *Repository, tx txRunner, calc *availability.Calculator, now func() time.Time, loc *time.Location) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if calc == nil {
		return nil, fmt.Errorf("availability calculator required")
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &service{repo: repo, tx: tx, calc: calc, now: now, loc: loc}, nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewCategoryDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) CreateCategory(ctx context.Context, actor auth.Actor, input CategoryInput) (*CategoryDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name required")
	}
	category := &models.Category{Name: name, Description: input.Description}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, categoryWriteError(err)
	}
	dto := NewCategoryDTO(category)
	return &dto, nil
}

func (s *service) UpdateCategory(ctx context.Context, actor auth.Actor, id uuid.UUID, input CategoryInput) (*CategoryDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	category, err := s.repo.FindCategory(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "category not found", "load category")
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		category.Name = name
	}
	if input.Description != nil {
		category.Description = input.Description
	}
	if err := s.repo.SaveCategory(ctx, category); err != nil {
		return nil, categoryWriteError(err)
	}
	dto := NewCategoryDTO(category)
	return &dto, nil
}

func (s *service) DeleteCategory(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindCategory(ctx, id); err != nil {
			return notFoundOr(err, "category not found", "load category")
		}
		count, err := repo.CountItemsInCategory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count category items")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "category still has items")
		}
		if err := repo.DeleteCategory(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete category")
		}
		return nil
	})
}

func (s *service) ListItems(ctx context.Context, input ListItemsInput) (*ItemListResult, error) {
	filters := input.Filters
	if !input.IncludeInactive {
		active := enums.ItemStatusActive
		filters.Status = &active
	}
	page, err := s.repo.ListItems(ctx, filters, input.Pagination)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}

	result := &ItemListResult{Items: make([]ItemDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		available, err := s.availableToday(ctx, &page.Items[i])
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, NewItemDTO(&page.Items[i], available))
	}
	return result, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*ItemDTO, error) {
	item, err := s.repo.FindItem(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "item not found", "load item")
	}
	available, err := s.availableToday(ctx, item)
	if err != nil {
		return nil, err
	}
	dto := NewItemDTO(item, available)
	return &dto, nil
}

func (s *service) CreateItem(ctx context.Context, actor auth.Actor, input CreateItemInput) (*ItemDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
	}
	if err := validateStock(input.RentPerDay, input.TotalQuantity); err != nil {
		return nil, err
	}
	category, err := s.repo.FindCategory(ctx, input.CategoryID)
	if err != nil {
		return nil, notFoundOr(err, "category not found", "load category")
	}

	item := &models.Item{
		CategoryID:    category.ID,
		Name:          name,
		Description:   input.Description,
		RentPerDay:    input.RentPerDay,
		TotalQuantity: input.TotalQuantity,
		Images:        input.Images,
		Status:        enums.ItemStatusActive,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert item")
	}
	item.Category = category
	dto := NewItemDTO(item, item.TotalQuantity)
	return &dto, nil
}

// UpdateItem applies the edit under the item row lock so a shrinking
// total_quantity cannot interleave with a booking.
func (s *service) UpdateItem(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var updated *models.Item
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindItemForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "item not found", "load item")
		}
		if input.CategoryID != nil && *input.CategoryID != item.CategoryID {
			if _, err := repo.FindCategory(ctx, *input.CategoryID); err != nil {
				return notFoundOr(err, "category not found", "load category")
			}
			item.CategoryID = *input.CategoryID
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "item name cannot be blank")
			}
			item.Name = name
		}
		if input.Description != nil {
			item.Description = input.Description
		}
		if input.RentPerDay != nil {
			item.RentPerDay = *input.RentPerDay
		}
		if input.TotalQuantity != nil {
			item.TotalQuantity = *input.TotalQuantity
		}
		if input.Images != nil {
			item.Images = *input.Images
		}
		if input.Status != nil {
			if !input.Status.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid item status %q", *input.Status))
			}
			item.Status = *input.Status
		}
		if err := validateStock(item.RentPerDay, item.TotalQuantity); err != nil {
			return err
		}
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item")
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, updated.ID)
}

// DeleteItem removes an item that has never been booked. Items with order
// history must be deactivated instead so the history stays intact.
func (s *service) DeleteItem(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindItemForUpdate(ctx, id); err != nil {
			return notFoundOr(err, "item not found", "load item")
		}
		count, err := repo.CountOrdersForItem(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count item orders")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "item has orders; set status to inactive instead").
				WithDetails(map[string]any{"order_count": count})
		}
		if err := repo.DeleteItem(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete item")
		}
		return nil
	})
}

func (s *service) availableToday(ctx context.Context, item *models.Item) (int, error) {
	today := availability.Today(s.now(), s.loc)
	res, err := s.calc.Check(ctx, availability.Query{
		ItemID:    item.ID,
		Range:     availability.DateRange{From: today, To: today},
		Requested: 1,
		Total:     item.TotalQuantity,
	})
	if err != nil {
		return 0, err
	}
	// listings show a shrunk item as sold out rather than negative
	return max(res.Remaining, 0), nil
}

func requireAdmin(actor auth.Actor) error {
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func validateStock(rent decimal.Decimal, total int) error {
	if rent.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "rent_per_day must be >= 0")
	}
	if total < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total_quantity must be >= 0")
	}
	return nil
}

func notFoundOr(err error, notFound, op string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func categoryWriteError(err error) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "category name already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save category")
}
