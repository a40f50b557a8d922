package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/pagination"
)

// Repository persists categories and items.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// DB exposes the bound handle for callers composing their own queries.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *Repository) SaveCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

func (r *Repository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Category{}, "id = ?", id).Error
}

func (r *Repository) FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) CountItemsInCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Item{}).Where("category_id = ?", categoryID).Count(&count).Error
	return count, err
}

func (r *Repository) CreateItem(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Omit("Category").Create(item).Error
}

func (r *Repository) SaveItem(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Omit("Category").Save(item).Error
}

func (r *Repository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Item{}, "id = ?", id).Error
}

// FindItem loads an item with its category.
func (r *Repository) FindItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemForUpdate loads the item row and holds its row lock until the
// surrounding transaction ends. Concurrent bookings for the same item queue
// behind it.
func (r *Repository) FindItemForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemFilters narrows the public item list.
type ItemFilters struct {
	CategoryID *uuid.UUID
	Search     string
	Status     *enums.ItemStatus
}

// ItemPage is one page of items.
type ItemPage struct {
	Items      []models.Item
	NextCursor string
}

func (r *Repository) ListItems(ctx context.Context, filters ItemFilters, params pagination.Params) (*ItemPage, error) {
	query := r.db.WithContext(ctx).Model(&models.Item{}).Preload("Category")
	if filters.CategoryID != nil {
		query = query.Where("category_id = ?", *filters.CategoryID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if term := strings.TrimSpace(filters.Search); term != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	query, limit, err := pagination.Keyset(query, params)
	if err != nil {
		return nil, fmt.Errorf("parse cursor: %w", err)
	}

	var rows []models.Item
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	page := &ItemPage{}
	page.Items, page.NextCursor = pagination.Page(rows, limit, itemCursor)
	return page, nil
}

func itemCursor(item models.Item) pagination.Cursor {
	return pagination.Cursor{CreatedAt: item.CreatedAt, ID: item.ID}
}

// CountOrdersForItem counts every order ever placed against the item.
func (r *Repository) CountOrdersForItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("item_id = ?", itemID).Count(&count).Error
	return count, err
}
