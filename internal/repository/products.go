package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/models"
)

// Trashed selects how soft-deleted products are treated by a query.
type Trashed string

const (
	WithoutTrashed Trashed = ""
	WithTrashed    Trashed = "with"
	OnlyTrashed    Trashed = "only"
)

// ProductQuery filters a product list.
type ProductQuery struct {
	Paging
	Search     string
	CategoryID uint
	BrandID    uint
	Active     *bool
	LowStock   bool
	OutOfStock bool
	Trashed    Trashed
}

func (q ProductQuery) filters() cache.Filters {
	f := cache.Filters{
		"search":       q.Search,
		"category_id":  uintString(q.CategoryID),
		"brand_id":     uintString(q.BrandID),
		"active":       boolPtrString(q.Active),
		"low_stock":    flag(q.LowStock),
		"out_of_stock": flag(q.OutOfStock),
		"trashed":      string(q.Trashed),
	}
	return f
}

// ProductStats is the dashboard summary of the product table.
type ProductStats struct {
	Total          int64           `json:"total"`
	Active         int64           `json:"active"`
	Inactive       int64           `json:"inactive"`
	LowStock       int64           `json:"low_stock"`
	OutOfStock     int64           `json:"out_of_stock"`
	Trashed        int64           `json:"trashed"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
}

// Products reads products.
type Products struct {
	db    *gorm.DB
	cache *cache.Catalog
}

// NewProducts creates a product repository. c may be nil.
func NewProducts(db *gorm.DB, c *cache.Catalog) *Products {
	return &Products{db: db, cache: c}
}

// WithTx returns a repository bound to tx.
func (r *Products) WithTx(tx *gorm.DB) *Products {
	return &Products{db: tx, cache: r.cache}
}

// Find loads one product with its category and brand.
func (r *Products) Find(ctx context.Context, id uint, trashed Trashed) (*models.Product, error) {
	q := r.db.WithContext(ctx).Preload("Category").Preload("Brand")
	if trashed != WithoutTrashed {
		q = q.Unscoped()
	}
	if trashed == OnlyTrashed {
		q = q.Where("deleted_at IS NOT NULL")
	}
	var p models.Product
	if err := q.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindMany loads the non-deleted products among ids, ordered by name.
func (r *Products) FindMany(ctx context.Context, ids []uint) ([]models.Product, error) {
	var out []models.Product
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&out).Error
	return out, err
}

// Search returns a cached page of products.
func (r *Products) Search(ctx context.Context, q ProductQuery) (Page[models.Product], error) {
	q.Paging = q.Paging.normalize()
	return cache.Remember(ctx, r.cache, cache.Products, cache.KindList, q.filters(), q.Page, q.PerPage,
		func() (Page[models.Product], error) {
			return r.search(ctx, q)
		})
}

func (r *Products) search(ctx context.Context, q ProductQuery) (Page[models.Product], error) {
	db := r.db.WithContext(ctx).Model(&models.Product{})
	switch q.Trashed {
	case WithTrashed:
		db = db.Unscoped()
	case OnlyTrashed:
		db = db.Unscoped().Where("products.deleted_at IS NOT NULL")
	}
	db = searchAny(db, q.Search, "products.name", "products.description", "products.sku", "products.barcode")
	if q.CategoryID != 0 {
		db = db.Where("products.category_id = ?", q.CategoryID)
	}
	if q.BrandID != 0 {
		db = db.Where("products.brand_id = ?", q.BrandID)
	}
	if q.Active != nil {
		db = db.Where("products.is_active = ?", *q.Active)
	}
	if q.LowStock {
		db = db.Where("products.stock > 0 AND products.stock <= products.min_stock")
	}
	if q.OutOfStock {
		db = db.Where("products.stock <= 0")
	}
	return paginate[models.Product](db, "products", q.Paging, "", "Category", "Brand")
}

// Stats returns cached product counters.
func (r *Products) Stats(ctx context.Context) (ProductStats, error) {
	return cache.Remember(ctx, r.cache, cache.Products, cache.KindStats, nil, 0, 0, func() (ProductStats, error) {
		var st ProductStats
		err := r.db.WithContext(ctx).Model(&models.Product{}).Select(`
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0) AS inactive,
			COALESCE(SUM(CASE WHEN stock > 0 AND stock <= min_stock THEN 1 ELSE 0 END), 0) AS low_stock,
			COALESCE(SUM(CASE WHEN stock <= 0 THEN 1 ELSE 0 END), 0) AS out_of_stock,
			COALESCE(SUM(price * stock), 0) AS inventory_value`).
			Scan(&st).Error
		if err != nil {
			return st, err
		}
		err = r.db.WithContext(ctx).Unscoped().Model(&models.Product{}).
			Where("deleted_at IS NOT NULL").Count(&st.Trashed).Error
		return st, err
	})
}

// AnyInCategory reports whether a non-deleted product references the category.
func (r *Products) AnyInCategory(ctx context.Context, categoryID uint) (bool, error) {
	return r.exists(ctx, "category_id = ?", categoryID)
}

// AnyWithBrand reports whether a non-deleted product references the brand.
func (r *Products) AnyWithBrand(ctx context.Context, brandID uint) (bool, error) {
	return r.exists(ctx, "brand_id = ?", brandID)
}

func (r *Products) exists(ctx context.Context, cond string, args ...any) (bool, error) {
	var p models.Product
	err := r.db.WithContext(ctx).Select("id").Where(cond, args...).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// SKUTaken reports whether any product, deleted or not, uses sku.
func (r *Products) SKUTaken(ctx context.Context, sku string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Product{}).Where("sku = ?", sku).Limit(1).Count(&n).Error
	return n > 0, err
}

// BarcodeTaken reports whether any product, deleted or not, uses code.
func (r *Products) BarcodeTaken(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Product{}).Where("barcode = ?", code).Limit(1).Count(&n).Error
	return n > 0, err
}

func uintString(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func boolPtrString(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return ""
}
