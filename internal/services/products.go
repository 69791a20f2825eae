package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/validation"
)

// Stock operations accepted by UpdateStock.
const (
	StockAdd      = "add"
	StockSubtract = "subtract"
	StockSet      = "set"
)

// Bulk actions accepted by BulkProductAction and BulkUserAction.
const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionDelete     = "delete"
)

const entityProduct = "product"

// productCaches are invalidated by every product write: category and brand
// lists carry product counts.
var productCaches = []cache.Entity{cache.Products, cache.Categories, cache.Brands}

// CatalogService manages products, categories and brands.
type CatalogService struct {
	core
	products   *repository.Products
	categories *repository.Categories
	brands     *repository.Brands
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(db *gorm.DB, opts Options) *CatalogService {
	return &CatalogService{
		core:       newCore(db, opts),
		products:   repository.NewProducts(db, opts.Cache),
		categories: repository.NewCategories(db, opts.Cache),
		brands:     repository.NewBrands(db, opts.Cache),
	}
}

// CreateProduct validates input and stores a new product, generating its
// SKU (and barcode on request) when absent.
func (s *CatalogService) CreateProduct(ctx context.Context, actor uint, in validation.Input) (*models.Product, error) {
	var p *models.Product
	err := s.mutate(ctx, actor, entityProduct, "create", in, func(ch *change) error {
		data, err := productSchema.Validate(ctx, in, validation.Options{Lookup: repository.NewLookup(ch.tx)})
		if err != nil {
			return err
		}
		var category models.Category
		if err := ch.tx.First(&category, data.Uint("category_id")).Error; err != nil {
			return notFound(err, "Category", data.Uint("category_id"))
		}

		p = &models.Product{}
		applyProduct(p, data)
		products := s.products.WithTx(ch.tx)
		if p.SKU == "" {
			if p.SKU, err = s.newSKU(ctx, category.Name, p.Name, products.SKUTaken); err != nil {
				return err
			}
		}
		if p.Barcode == nil && data.Bool("generate_barcode") {
			code, err := s.newBarcode(ctx, products.BarcodeTaken)
			if err != nil {
				return err
			}
			p.Barcode = &code
		}
		if err := ch.tx.Create(p).Error; err != nil {
			return err
		}
		if p, err = products.Find(ctx, p.ID, repository.WithoutTrashed); err != nil {
			return err
		}
		if err := ch.audit(entityProduct, p.ID, "create", nil, p); err != nil {
			return err
		}
		ch.publish(events.ProductCreated, entityProduct, p.ID, p)
		ch.touch(productCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct applies a partial update. Uniqueness checks ignore the
// product itself.
func (s *CatalogService) UpdateProduct(ctx context.Context, actor uint, id uint, in validation.Input) (*models.Product, error) {
	var p *models.Product
	err := s.mutate(ctx, actor, entityProduct, "update", in, func(ch *change) error {
		var err error
		products := s.products.WithTx(ch.tx)
		if p, err = s.loadProduct(ctx, ch.tx, id); err != nil {
			return err
		}
		data, err := productSchema.Validate(ctx, in, validation.Options{
			Lookup:   repository.NewLookup(ch.tx),
			IgnoreID: id,
			Partial:  true,
		})
		if err != nil {
			return err
		}
		old := *p
		applyProduct(p, data)
		if p.SKU == "" {
			var category models.Category
			if err := ch.tx.First(&category, p.CategoryID).Error; err != nil {
				return notFound(err, "Category", p.CategoryID)
			}
			if p.SKU, err = s.newSKU(ctx, category.Name, p.Name, products.SKUTaken); err != nil {
				return err
			}
		}
		if err := ch.tx.Omit("Category", "Brand").Save(p).Error; err != nil {
			return err
		}
		if p, err = products.Find(ctx, id, repository.WithoutTrashed); err != nil {
			return err
		}
		if err := ch.audit(entityProduct, id, "update", &old, p); err != nil {
			return err
		}
		ch.publish(events.ProductUpdated, entityProduct, id, p)
		ch.touch(productCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct soft-deletes a product with no stock left.
func (s *CatalogService) DeleteProduct(ctx context.Context, actor uint, id uint) error {
	return s.mutate(ctx, actor, entityProduct, "delete", id, func(ch *change) error {
		p, err := s.loadProduct(ctx, ch.tx, id)
		if err != nil {
			return err
		}
		if p.Stock > 0 {
			return newError(ErrBusinessRule, "Cannot delete product %q: %d units are still in stock.", p.Name, p.Stock)
		}
		return s.softDelete(ch, []models.Product{*p})
	})
}

func (s *CatalogService) softDelete(ch *change, products []models.Product) error {
	if err := ch.tx.Delete(&models.Product{}, idsOf(products)).Error; err != nil {
		return err
	}
	for i := range products {
		p := &products[i]
		if err := ch.audit(entityProduct, p.ID, "delete", p, nil); err != nil {
			return err
		}
		ch.publish(events.ProductDeleted, entityProduct, p.ID, map[string]any{"sku": p.SKU})
	}
	ch.touch(productCaches...)
	return nil
}

// RestoreProduct brings back a soft-deleted product whose category still
// exists.
func (s *CatalogService) RestoreProduct(ctx context.Context, actor uint, id uint) (*models.Product, error) {
	var p *models.Product
	err := s.mutate(ctx, actor, entityProduct, "restore", id, func(ch *change) error {
		var err error
		products := s.products.WithTx(ch.tx)
		if p, err = products.Find(ctx, id, repository.OnlyTrashed); err != nil {
			return notFound(err, "Deleted product", id)
		}
		if p.Category == nil {
			return newError(ErrBusinessRule, "Cannot restore product %q: its category no longer exists.", p.Name)
		}
		if err := ch.tx.Unscoped().Model(&models.Product{}).Where("id = ?", id).Update("deleted_at", nil).Error; err != nil {
			return err
		}
		if p, err = products.Find(ctx, id, repository.WithoutTrashed); err != nil {
			return err
		}
		if err := ch.audit(entityProduct, id, "restore", nil, p); err != nil {
			return err
		}
		ch.publish(events.ProductRestored, entityProduct, id, p)
		ch.touch(productCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateStock adjusts stock in one UPDATE statement. Subtracting floors at
// zero. The operation and quantity are checked before any database access.
func (s *CatalogService) UpdateStock(ctx context.Context, actor uint, id uint, quantity int, operation string) (*models.Product, error) {
	var expr clause.Expr
	switch operation {
	case StockAdd:
		expr = gorm.Expr("stock + ?", quantity)
	case StockSubtract:
		expr = gorm.Expr("CASE WHEN stock - ? < 0 THEN 0 ELSE stock - ? END", quantity, quantity)
	case StockSet:
		expr = gorm.Expr("?", quantity)
	default:
		return nil, newError(ErrInvalidOperation, "Invalid stock operation %q: use add, subtract or set.", operation)
	}
	if quantity < 0 {
		return nil, newError(ErrInvalidArgument, "Quantity must be zero or greater, got %d.", quantity)
	}

	var p *models.Product
	input := map[string]any{"id": id, "quantity": quantity, "operation": operation}
	err := s.mutate(ctx, actor, entityProduct, "stock", input, func(ch *change) error {
		before, err := s.loadProduct(ctx, ch.tx, id)
		if err != nil {
			return err
		}
		res := ch.tx.Model(&models.Product{}).Where("id = ?", id).Update("stock", expr)
		if res.Error != nil {
			return res.Error
		}
		products := s.products.WithTx(ch.tx)
		if p, err = products.Find(ctx, id, repository.WithoutTrashed); err != nil {
			return err
		}
		old := map[string]any{"stock": before.Stock}
		cur := map[string]any{"stock": p.Stock}
		if err := ch.audit(entityProduct, id, "stock", old, cur); err != nil {
			return err
		}
		ch.publish(events.StockUpdated, entityProduct, id, map[string]any{
			"operation": operation,
			"quantity":  quantity,
			"old_stock": before.Stock,
			"new_stock": p.Stock,
			"status":    p.StockStatus(),
		})
		ch.touch(productCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ToggleProductStatus flips is_active.
func (s *CatalogService) ToggleProductStatus(ctx context.Context, actor uint, id uint) (*models.Product, error) {
	var p *models.Product
	err := s.mutate(ctx, actor, entityProduct, "toggle", id, func(ch *change) error {
		var err error
		if p, err = s.loadProduct(ctx, ch.tx, id); err != nil {
			return err
		}
		return s.setProductsActive(ch, []models.Product{*p}, !p.IsActive)
	})
	if err != nil {
		return nil, err
	}
	p.IsActive = !p.IsActive
	return p, nil
}

func (s *CatalogService) setProductsActive(ch *change, products []models.Product, active bool) error {
	if err := ch.tx.Model(&models.Product{}).Where("id IN ?", idsOf(products)).Update("is_active", active).Error; err != nil {
		return err
	}
	for _, p := range products {
		if p.IsActive == active {
			continue
		}
		old := map[string]any{"is_active": p.IsActive}
		cur := map[string]any{"is_active": active}
		if err := ch.audit(entityProduct, p.ID, "update", old, cur); err != nil {
			return err
		}
		ch.publish(events.ProductUpdated, entityProduct, p.ID, cur)
	}
	ch.touch(productCaches...)
	return nil
}

// BulkUpdateProducts applies is_active, category_id, brand_id, min_stock
// and max_stock to every matched product. It returns the number updated.
func (s *CatalogService) BulkUpdateProducts(ctx context.Context, actor uint, ids []uint, in validation.Input) (int, error) {
	var n int
	err := s.mutate(ctx, actor, entityProduct, "bulk_update", in, func(ch *change) error {
		data, err := bulkProductSchema.Validate(ctx, in, validation.Options{Lookup: repository.NewLookup(ch.tx), Partial: true})
		if err != nil {
			return err
		}
		updates := bulkProductUpdates(data)
		if len(updates) == 0 {
			return newError(ErrInvalidArgument, "No fields to update.")
		}
		products, err := s.products.WithTx(ch.tx).FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return newError(ErrNotFound, "No matching products.")
		}
		if err := ch.tx.Model(&models.Product{}).Where("id IN ?", idsOf(products)).Updates(updates).Error; err != nil {
			return err
		}
		for i := range products {
			p := &products[i]
			if err := ch.audit(entityProduct, p.ID, "update", p, withUpdates(p, updates)); err != nil {
				return err
			}
			ch.publish(events.ProductUpdated, entityProduct, p.ID, updates)
		}
		ch.touch(productCaches...)
		n = len(products)
		return nil
	})
	return n, err
}

func bulkProductUpdates(data validation.Data) map[string]any {
	updates := map[string]any{}
	if data.Has("is_active") && !data.IsNull("is_active") {
		updates["is_active"] = data.Bool("is_active")
	}
	if data.Has("category_id") {
		updates["category_id"] = data.Uint("category_id")
	}
	if data.Has("brand_id") {
		updates["brand_id"] = data.UintPtr("brand_id")
	}
	if data.Has("min_stock") && !data.IsNull("min_stock") {
		updates["min_stock"] = data.Int("min_stock")
	}
	if data.Has("max_stock") {
		updates["max_stock"] = data.IntPtr("max_stock")
	}
	return updates
}

// withUpdates returns the audit view of p after a column map update.
func withUpdates(p *models.Product, updates map[string]any) map[string]any {
	m := snapshot(p)
	if m == nil {
		m = map[string]any{}
	}
	for k, v := range updates {
		m[k] = v
	}
	return m
}

// BulkDeleteProducts soft-deletes every matched product, or none when any
// of them still has stock.
func (s *CatalogService) BulkDeleteProducts(ctx context.Context, actor uint, ids []uint) (int, error) {
	var n int
	err := s.mutate(ctx, actor, entityProduct, "bulk_delete", ids, func(ch *change) error {
		products, err := s.products.WithTx(ch.tx).FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return newError(ErrNotFound, "No matching products.")
		}
		var stocked []string
		for _, p := range products {
			if p.Stock > 0 {
				stocked = append(stocked, fmt.Sprintf("%s (%d)", p.Name, p.Stock))
			}
		}
		if len(stocked) > 0 {
			return newError(ErrBusinessRule, "Cannot delete products that are still in stock: %s.", strings.Join(stocked, ", "))
		}
		n = len(products)
		return s.softDelete(ch, products)
	})
	return n, err
}

// BulkProductAction runs activate, deactivate or delete over ids.
func (s *CatalogService) BulkProductAction(ctx context.Context, actor uint, ids []uint, action string) (int, error) {
	switch action {
	case ActionDelete:
		return s.BulkDeleteProducts(ctx, actor, ids)
	case ActionActivate, ActionDeactivate:
	default:
		return 0, newError(ErrInvalidOperation, "Invalid bulk action %q.", action)
	}
	var n int
	err := s.mutate(ctx, actor, entityProduct, action, ids, func(ch *change) error {
		products, err := s.products.WithTx(ch.tx).FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return newError(ErrNotFound, "No matching products.")
		}
		n = len(products)
		return s.setProductsActive(ch, products, action == ActionActivate)
	})
	return n, err
}

// GetProduct loads a product, including soft-deleted ones when withTrashed.
func (s *CatalogService) GetProduct(ctx context.Context, id uint, withTrashed bool) (*models.Product, error) {
	trashed := repository.WithoutTrashed
	if withTrashed {
		trashed = repository.WithTrashed
	}
	p, err := s.products.Find(ctx, id, trashed)
	if err != nil {
		return nil, notFound(err, "Product", id)
	}
	return p, nil
}

func (s *CatalogService) SearchProducts(ctx context.Context, q repository.ProductQuery) (repository.Page[models.Product], error) {
	return s.products.Search(ctx, q)
}

func (s *CatalogService) ProductStats(ctx context.Context) (repository.ProductStats, error) {
	return s.products.Stats(ctx)
}

// LowStockProducts lists products at or under their minimum stock.
func (s *CatalogService) LowStockProducts(ctx context.Context, q repository.ProductQuery) (repository.Page[models.Product], error) {
	q.LowStock = true
	return s.products.Search(ctx, q)
}

func (s *CatalogService) loadProduct(ctx context.Context, tx *gorm.DB, id uint) (*models.Product, error) {
	var p models.Product
	if err := tx.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, "Product", id)
	}
	return &p, nil
}

// applyProduct copies the validated fields present in data onto p.
func applyProduct(p *models.Product, data validation.Data) {
	if data.Has("name") {
		p.Name = data.String("name")
	}
	if data.Has("description") {
		p.Description = data.String("description")
	}
	if data.Has("price") && !data.IsNull("price") {
		p.Price = money(data.Float("price"))
	}
	if data.Has("cost_price") {
		p.CostPrice = nullMoney(data.FloatPtr("cost_price"))
	}
	if data.Has("sale_price") {
		p.SalePrice = nullMoney(data.FloatPtr("sale_price"))
	}
	if data.Has("stock") && !data.IsNull("stock") {
		p.Stock = data.Int("stock")
	}
	if data.Has("min_stock") && !data.IsNull("min_stock") {
		p.MinStock = data.Int("min_stock")
	}
	if data.Has("max_stock") {
		p.MaxStock = data.IntPtr("max_stock")
	}
	if data.Has("sku") {
		p.SKU = data.String("sku")
	}
	if data.Has("barcode") {
		p.Barcode = data.StringPtr("barcode")
	}
	if data.Has("category_id") && !data.IsNull("category_id") {
		p.CategoryID = data.Uint("category_id")
		p.Category = nil
	}
	if data.Has("brand_id") {
		p.BrandID = data.UintPtr("brand_id")
		p.Brand = nil
	}
	if data.Has("is_active") && !data.IsNull("is_active") {
		p.IsActive = data.Bool("is_active")
	}
	if data.Has("weight") {
		p.Dimensions.Weight = data.FloatPtr("weight")
	}
	if data.Has("height") {
		p.Dimensions.Height = data.FloatPtr("height")
	}
	if data.Has("width") {
		p.Dimensions.Width = data.FloatPtr("width")
	}
	if data.Has("length") {
		p.Dimensions.Length = data.FloatPtr("length")
	}
	if data.Has("specifications") {
		p.Specifications = datatypes.JSONMap(data.Map("specifications"))
	}
	if data.Has("images") {
		p.Images = datatypes.JSONSlice[string](data.Strings("images"))
	}
}

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func nullMoney(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(money(*f))
}

func idsOf(products []models.Product) []uint {
	ids := make([]uint, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}
