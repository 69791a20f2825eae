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

const entityCategory = "category"

var categoryCaches = []cache.Entity{cache.Categories, cache.Products}

func (s *CatalogService) CreateCategory(ctx context.Context, actor uint, in validation.Input) (*models.Category, error) {
	var c *models.Category
	err := s.mutate(ctx, actor, entityCategory, "create", in, func(ch *change) error {
		data, err := categorySchema.Validate(ctx, in, validation.Options{Lookup: repository.NewLookup(ch.tx)})
		if err != nil {
			return err
		}
		c = &models.Category{}
		applyCategory(c, data)
		if err := ch.tx.Create(c).Error; err != nil {
			return err
		}
		if err := ch.audit(entityCategory, c.ID, "create", nil, c); err != nil {
			return err
		}
		ch.publish(events.CategoryCreated, entityCategory, c.ID, c)
		ch.touch(categoryCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, actor uint, id uint, in validation.Input) (*models.Category, error) {
	var c *models.Category
	err := s.mutate(ctx, actor, entityCategory, "update", in, func(ch *change) error {
		var err error
		repo := s.categories.WithTx(ch.tx)
		if c, err = repo.Find(ctx, id); err != nil {
			return notFound(err, "Category", id)
		}
		data, err := categorySchema.Validate(ctx, in, validation.Options{
			Lookup:   repository.NewLookup(ch.tx),
			IgnoreID: id,
			Partial:  true,
		})
		if err != nil {
			return err
		}
		old := *c
		applyCategory(c, data)
		if err := ch.tx.Save(c).Error; err != nil {
			return err
		}
		if err := ch.audit(entityCategory, id, "update", &old, c); err != nil {
			return err
		}
		ch.publish(events.CategoryUpdated, entityCategory, id, c)
		ch.touch(categoryCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory removes a category with no live products. Its soft-deleted
// products are removed with it.
func (s *CatalogService) DeleteCategory(ctx context.Context, actor uint, id uint) error {
	return s.mutate(ctx, actor, entityCategory, "delete", id, func(ch *change) error {
		c, err := s.categories.WithTx(ch.tx).Find(ctx, id)
		if err != nil {
			return notFound(err, "Category", id)
		}
		busy, err := s.products.WithTx(ch.tx).AnyInCategory(ctx, id)
		if err != nil {
			return err
		}
		if busy {
			return newError(ErrBusinessRule, "Cannot delete category %q because it has associated products.", c.Name)
		}
		return s.deleteCategories(ch, []models.Category{*c})
	})
}

func (s *CatalogService) deleteCategories(ch *change, categories []models.Category) error {
	ids := make([]uint, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	if err := ch.tx.Unscoped().Where("category_id IN ?", ids).Delete(&models.Product{}).Error; err != nil {
		return err
	}
	if err := ch.tx.Delete(&models.Category{}, ids).Error; err != nil {
		return err
	}
	for i := range categories {
		c := &categories[i]
		if err := ch.audit(entityCategory, c.ID, "delete", c, nil); err != nil {
			return err
		}
		ch.publish(events.CategoryDeleted, entityCategory, c.ID, map[string]any{"name": c.Name})
	}
	ch.touch(categoryCaches...)
	return nil
}

func (s *CatalogService) ToggleCategoryStatus(ctx context.Context, actor uint, id uint) (*models.Category, error) {
	var c *models.Category
	err := s.mutate(ctx, actor, entityCategory, "toggle", id, func(ch *change) error {
		var err error
		if c, err = s.categories.WithTx(ch.tx).Find(ctx, id); err != nil {
			return notFound(err, "Category", id)
		}
		return s.setCategoriesActive(ch, []models.Category{*c}, !c.IsActive)
	})
	if err != nil {
		return nil, err
	}
	c.IsActive = !c.IsActive
	return c, nil
}

func (s *CatalogService) setCategoriesActive(ch *change, categories []models.Category, active bool) error {
	ids := make([]uint, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	if err := ch.tx.Model(&models.Category{}).Where("id IN ?", ids).Update("is_active", active).Error; err != nil {
		return err
	}
	for _, c := range categories {
		if c.IsActive == active {
			continue
		}
		cur := map[string]any{"is_active": active}
		if err := ch.audit(entityCategory, c.ID, "update", map[string]any{"is_active": c.IsActive}, cur); err != nil {
			return err
		}
		ch.publish(events.CategoryUpdated, entityCategory, c.ID, cur)
	}
	ch.touch(categoryCaches...)
	return nil
}

// BulkUpdateCategories sets is_active on every matched category.
func (s *CatalogService) BulkUpdateCategories(ctx context.Context, actor uint, ids []uint, in validation.Input) (int, error) {
	var n int
	err := s.mutate(ctx, actor, entityCategory, "bulk_update", in, func(ch *change) error {
		data, err := activeSchema.Validate(ctx, in, validation.Options{})
		if err != nil {
			return err
		}
		categories, err := s.categories.WithTx(ch.tx).FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(categories) == 0 {
			return newError(ErrNotFound, "No matching categories.")
		}
		n = len(categories)
		return s.setCategoriesActive(ch, categories, data.Bool("is_active"))
	})
	return n, err
}

// BulkDeleteCategories deletes every matched category, or none when any of
// them still has products.
func (s *CatalogService) BulkDeleteCategories(ctx context.Context, actor uint, ids []uint) (int, error) {
	var n int
	err := s.mutate(ctx, actor, entityCategory, "bulk_delete", ids, func(ch *change) error {
		repo := s.categories.WithTx(ch.tx)
		categories, err := repo.FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(categories) == 0 {
			return newError(ErrNotFound, "No matching categories.")
		}
		busy, err := repo.WithProducts(ctx, ids)
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			names := make([]string, len(busy))
			for i, c := range busy {
				names[i] = c.Name
			}
			return newError(ErrBusinessRule, "Cannot delete categories with associated products: %s.", strings.Join(names, ", "))
		}
		n = len(categories)
		return s.deleteCategories(ch, categories)
	})
	return n, err
}

func (s *CatalogService) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	c, err := s.categories.Find(ctx, id)
	if err != nil {
		return nil, notFound(err, "Category", id)
	}
	return c, nil
}

func (s *CatalogService) SearchCategories(ctx context.Context, q repository.ListQuery) (repository.Page[models.Category], error) {
	return s.categories.Search(ctx, q)
}

func (s *CatalogService) CategoryStats(ctx context.Context) (repository.CountStats, error) {
	return s.categories.Stats(ctx)
}

func applyCategory(c *models.Category, data validation.Data) {
	if data.Has("name") {
		c.Name = data.String("name")
	}
	if data.Has("description") {
		c.Description = data.String("description")
	}
	if data.Has("is_active") && !data.IsNull("is_active") {
		c.IsActive = data.Bool("is_active")
	}
}
