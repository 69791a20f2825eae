package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/models"
)

// ListQuery filters the simple reference lists (categories, brands).
type ListQuery struct {
	Paging
	Search string
	Active *bool
}

func (q ListQuery) filters() cache.Filters {
	return cache.Filters{"search": q.Search, "active": boolPtrString(q.Active)}
}

// CountStats is the summary shared by categories and brands.
type CountStats struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Inactive     int64 `json:"inactive"`
	WithProducts int64 `json:"with_products"`
}

// productsCount selects the number of live products referencing table.id
// through column.
func productsCount(table, column string) string {
	return table + ".*, (SELECT COUNT(*) FROM products WHERE products." + column +
		" = " + table + ".id AND products.deleted_at IS NULL) AS products_count"
}

func countStats(db *gorm.DB, model any, table, column string) (CountStats, error) {
	var st CountStats
	err := db.Model(model).Select(`
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active,
		COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0) AS inactive,
		COALESCE(SUM(CASE WHEN EXISTS (SELECT 1 FROM products WHERE products.` + column + ` = ` + table + `.id AND products.deleted_at IS NULL) THEN 1 ELSE 0 END), 0) AS with_products`).
		Scan(&st).Error
	return st, err
}

// Categories reads categories.
type Categories struct {
	db    *gorm.DB
	cache *cache.Catalog
}

// NewCategories creates a category repository. c may be nil.
func NewCategories(db *gorm.DB, c *cache.Catalog) *Categories {
	return &Categories{db: db, cache: c}
}

// WithTx returns a repository bound to tx.
func (r *Categories) WithTx(tx *gorm.DB) *Categories {
	return &Categories{db: tx, cache: r.cache}
}

// Find loads one category with its live product count.
func (r *Categories) Find(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	err := r.db.WithContext(ctx).Select(productsCount("categories", "category_id")).
		Where("categories.id = ?", id).Take(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindMany loads the categories among ids, ordered by name.
func (r *Categories) FindMany(ctx context.Context, ids []uint) ([]models.Category, error) {
	var out []models.Category
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&out).Error
	return out, err
}

// WithProducts returns the categories among ids that still hold live products.
func (r *Categories) WithProducts(ctx context.Context, ids []uint) ([]models.Category, error) {
	var out []models.Category
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("EXISTS (SELECT 1 FROM products WHERE products.category_id = categories.id AND products.deleted_at IS NULL)").
		Order("name ASC").Find(&out).Error
	return out, err
}

// Search returns a cached page of categories.
func (r *Categories) Search(ctx context.Context, q ListQuery) (Page[models.Category], error) {
	q.Paging = q.Paging.normalize()
	return cache.Remember(ctx, r.cache, cache.Categories, cache.KindList, q.filters(), q.Page, q.PerPage,
		func() (Page[models.Category], error) {
			db := r.db.WithContext(ctx).Model(&models.Category{})
			db = searchAny(db, q.Search, "categories.name", "categories.description")
			if q.Active != nil {
				db = db.Where("categories.is_active = ?", *q.Active)
			}
			return paginate[models.Category](db, "categories", q.Paging, productsCount("categories", "category_id"))
		})
}

// Stats returns cached category counters.
func (r *Categories) Stats(ctx context.Context) (CountStats, error) {
	return cache.Remember(ctx, r.cache, cache.Categories, cache.KindStats, nil, 0, 0, func() (CountStats, error) {
		return countStats(r.db.WithContext(ctx), &models.Category{}, "categories", "category_id")
	})
}
