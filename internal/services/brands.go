package services

import (
	"context"
	"strings"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/validation"
)

const entityBrand = "brand"

var brandCaches = []cache.Entity{cache.Brands, cache.Products}

func (s *CatalogService) CreateBrand(ctx context.Context, actor uint, in validation.Input) (*models.Brand, error) {
	var b *models.Brand
	err := s.mutate(ctx, actor, entityBrand, "create", in, func(ch *change) error {
		data, err := brandSchema(s.now().Year()).Validate(ctx, in, validation.Options{Lookup: repository.NewLookup(ch.tx)})
		if err != nil {
			return err
		}
		b = &models.Brand{}
		applyBrand(b, data)
		if err := ch.tx.Create(b).Error; err != nil {
			return err
		}
		if err := ch.audit(entityBrand, b.ID, "create", nil, b); err != nil {
			return err
		}
		ch.publish(events.BrandCreated, entityBrand, b.ID, b)
		ch.touch(brandCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *CatalogService) UpdateBrand(ctx context.Context, actor uint, id uint, in validation.Input) (*models.Brand, error) {
	var b *models.Brand
	err := s.mutate(ctx, actor, entityBrand, "update", in, func(ch *change) error {
		var err error
		if b, err = s.brands.WithTx(ch.tx).Find(ctx, id); err != nil {
			return notFound(err, "Brand", id)
		}
		data, err := brandSchema(s.now().Year()).Validate(ctx, in, validation.Options{
			Lookup:   repository.NewLookup(ch.tx),
			IgnoreID: id,
			Partial:  true,
		})
		if err != nil {
			return err
		}
		old := *b
		applyBrand(b, data)
		if err := ch.tx.Save(b).Error; err != nil {
			return err
		}
		if err := ch.audit(entityBrand, id, "update", &old, b); err != nil {
			return err
		}
		ch.publish(events.BrandUpdated, entityBrand, id, b)
		ch.touch(brandCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBrand removes a brand with no live products. Soft-deleted products
// keep existing without a brand.
func (s *CatalogService) DeleteBrand(ctx context.Context, actor uint, id uint) error {
	return s.mutate(ctx, actor, entityBrand, "delete", id, func(ch *change) error {
		b, err := s.brands.WithTx(ch.tx).Find(ctx, id)
		if err != nil {
			return notFound(err, "Brand", id)
		}
		busy, err := s.products.WithTx(ch.tx).AnyWithBrand(ctx, id)
		if err != nil {
			return err
		}
		if busy {
			return newError(ErrBusinessRule, "Cannot delete brand %q because it has associated products.", b.Name)
		}
		return s.deleteBrands(ch, []models.Brand{*b})
	})
}

func (s *CatalogService) deleteBrands(ch *change, brands []models.Brand) error {
	ids := make([]uint, len(brands))
	for i, b := range brands {
		ids[i] = b.ID
	}
	if err := ch.tx.Unscoped().Model(&models.Product{}).Where("brand_id IN ?", ids).Update("brand_id", nil).Error; err != nil {
		return err
	}
	if err := ch.tx.Delete(&models.Brand{}, ids).Error; err != nil {
		return err
	}
	for i := range brands {
		b := &brands[i]
		if err := ch.audit(entityBrand, b.ID, "delete", b, nil); err != nil {
			return err
		}
		ch.publish(events.BrandDeleted, entityBrand, b.ID, map[string]any{"name": b.Name})
	}
	ch.touch(brandCaches...)
	return nil
}

func (s *CatalogService) ToggleBrandStatus(ctx context.Context, actor uint, id uint) (*models.Brand, error) {
	var b *models.Brand
	err := s.mutate(ctx, actor, entityBrand, "toggle", id, func(ch *change) error {
		var err error
		if b, err = s.brands.WithTx(ch.tx).Find(ctx, id); err != nil {
			return notFound(err, "Brand", id)
		}
		return s.setBrandsActive(ch, []models.Brand{*b}, !b.IsActive)
	})
	if err != nil {
		return nil, err
	}
	b.IsActive = !b.IsActive
	return b, nil
}

func (s *CatalogService) setBrandsActive(ch *change, brands []models.Brand, active bool) error {
	ids := make([]uint, len(brands))
	for i, b := range brands {
		ids[i] = b.ID
	}
	if err := ch.tx.Model(&models.Brand{}).Where("id IN ?", ids).Update("is_active", active).Error; err != nil {
		return err
	}
	for _, b := range brands {
		if b.IsActive == active {
			continue
		}
		cur := map[string]any{"is_active": active}
		if err := ch.audit(entityBrand, b.ID, "update", map[string]any{"is_active": b.IsActive}, cur); err != nil {
			return err
		}
		ch.publish(events.BrandUpdated, entityBrand, b.ID, cur)
	}
	ch.touch(brandCaches...)
	return nil
}

// BulkUpdateBrands sets is_active on every matched brand.
func (s *CatalogService) BulkUpdateBrands(ctx context.Context, actor uint, ids []uint, in validation.Input) (int, error) {
	var n int
	err := s.mutate(ctx, actor, entityBrand, "bulk_update", in, func(ch *change) error {
		data, err := activeSchema.Validate(ctx, in, validation.Options{})
		if err != nil {
			return err
		}
		brands, err := s.brands.WithTx(ch.tx).FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(brands) == 0 {
			return newError(ErrNotFound, "No matching brands.")
		}
		n = len(brands)
		return s.setBrandsActive(ch, brands, data.Bool("is_active"))
	})
	return n, err
}

// BulkDeleteBrands deletes every matched brand, or none when any of them
// still has products.
func (s *CatalogService) BulkDeleteBrands(ctx context.Context, actor uint, ids []uint) (int, error) {
	var n int
	err := s.mutate(ctx, actor, entityBrand, "bulk_delete", ids, func(ch *change) error {
		repo := s.brands.WithTx(ch.tx)
		brands, err := repo.FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(brands) == 0 {
			return newError(ErrNotFound, "No matching brands.")
		}
		busy, err := repo.WithProducts(ctx, ids)
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			names := make([]string, len(busy))
			for i, b := range busy {
				names[i] = b.Name
			}
			return newError(ErrBusinessRule, "Cannot delete brands with associated products: %s.", strings.Join(names, ", "))
		}
		n = len(brands)
		return s.deleteBrands(ch, brands)
	})
	return n, err
}

func (s *CatalogService) GetBrand(ctx context.Context, id uint) (*models.Brand, error) {
	b, err := s.brands.Find(ctx, id)
	if err != nil {
		return nil, notFound(err, "Brand", id)
	}
	return b, nil
}

func (s *CatalogService) SearchBrands(ctx context.Context, q repository.ListQuery) (repository.Page[models.Brand], error) {
	return s.brands.Search(ctx, q)
}

func (s *CatalogService) BrandStats(ctx context.Context) (repository.CountStats, error) {
	return s.brands.Stats(ctx)
}

func applyBrand(b *models.Brand, data validation.Data) {
	if data.Has("name") {
		b.Name = data.String("name")
	}
	if data.Has("country_of_origin") {
		b.CountryOfOrigin = data.String("country_of_origin")
	}
	if data.Has("founded_year") {
		b.FoundedYear = data.IntPtr("founded_year")
	}
	if data.Has("website") {
		b.Website = data.String("website")
	}
	if data.Has("description") {
		b.Description = data.String("description")
	}
	if data.Has("is_active") && !data.IsNull("is_active") {
		b.IsActive = data.Bool("is_active")
	}
}
