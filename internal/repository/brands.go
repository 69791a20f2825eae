package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/models"
)

// Brands reads brands.
type Brands struct {
	db    *gorm.DB
	cache *cache.Catalog
}

// NewBrands creates a brand repository. c may be nil.
func NewBrands(db *gorm.DB, c *cache.Catalog) *Brands {
	return &Brands{db: db, cache: c}
}

// WithTx returns a repository bound to tx.
func (r *Brands) WithTx(tx *gorm.DB) *Brands {
	return &Brands{db: tx, cache: r.cache}
}

// Find loads one brand with its live product count.
func (r *Brands) Find(ctx context.Context, id uint) (*models.Brand, error) {
	var b models.Brand
	err := r.db.WithContext(ctx).Select(productsCount("brands", "brand_id")).
		Where("brands.id = ?", id).Take(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindMany loads the brands among ids, ordered by name.
func (r *Brands) FindMany(ctx context.Context, ids []uint) ([]models.Brand, error) {
	var out []models.Brand
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&out).Error
	return out, err
}

// WithProducts returns the brands among ids that still hold live products.
func (r *Brands) WithProducts(ctx context.Context, ids []uint) ([]models.Brand, error) {
	var out []models.Brand
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("EXISTS (SELECT 1 FROM products WHERE products.brand_id = brands.id AND products.deleted_at IS NULL)").
		Order("name ASC").Find(&out).Error
	return out, err
}

// Search returns a cached page of brands. The search term also matches
// country_of_origin.
func (r *Brands) Search(ctx context.Context, q ListQuery) (Page[models.Brand], error) {
	q.Paging = q.Paging.normalize()
	return cache.Remember(ctx, r.cache, cache.Brands, cache.KindList, q.filters(), q.Page, q.PerPage,
		func() (Page[models.Brand], error) {
			db := r.db.WithContext(ctx).Model(&models.Brand{})
			db = searchAny(db, q.Search, "brands.name", "brands.description", "brands.country_of_origin")
			if q.Active != nil {
				db = db.Where("brands.is_active = ?", *q.Active)
			}
			return paginate[models.Brand](db, "brands", q.Paging, productsCount("brands", "brand_id"))
		})
}

// Stats returns cached brand counters.
func (r *Brands) Stats(ctx context.Context) (CountStats, error) {
	return cache.Remember(ctx, r.cache, cache.Brands, cache.KindStats, nil, 0, 0, func() (CountStats, error) {
		return countStats(r.db.WithContext(ctx), &models.Brand{}, "brands", "brand_id")
	})
}
