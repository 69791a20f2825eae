package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/models"
)

const usersCount = "roles.*, (SELECT COUNT(*) FROM user_roles WHERE user_roles.role_id = roles.id) AS users_count"

// Roles reads roles and permissions.
type Roles struct {
	db    *gorm.DB
	cache *cache.Catalog
}

// NewRoles creates a role repository. c may be nil.
func NewRoles(db *gorm.DB, c *cache.Catalog) *Roles {
	return &Roles{db: db, cache: c}
}

// WithTx returns a repository bound to tx.
func (r *Roles) WithTx(tx *gorm.DB) *Roles {
	return &Roles{db: tx, cache: r.cache}
}

// Find loads a role with its permissions and user count.
func (r *Roles) Find(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	err := r.db.WithContext(ctx).Select(usersCount).Preload("Permissions").
		Where("roles.id = ?", id).Take(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// FindByName loads a role by exact name.
func (r *Roles) FindByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).Take(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// FindByNames loads the roles named in names. Missing names are returned
// separately in input order.
func (r *Roles) FindByNames(ctx context.Context, names []string) ([]models.Role, []string, error) {
	var found []models.Role
	if len(names) == 0 {
		return found, nil, nil
	}
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&found).Error; err != nil {
		return nil, nil, err
	}
	return found, missing(names, found, func(m models.Role) string { return m.Name }), nil
}

// Search returns a cached page of roles.
func (r *Roles) Search(ctx context.Context, q ListQuery) (Page[models.Role], error) {
	q.Paging = q.Paging.normalize()
	return cache.Remember(ctx, r.cache, cache.Roles, cache.KindList, cache.Filters{"search": q.Search}, q.Page, q.PerPage,
		func() (Page[models.Role], error) {
			db := r.db.WithContext(ctx).Model(&models.Role{})
			db = searchAny(db, q.Search, "roles.name", "roles.description")
			return paginate[models.Role](db, "roles", q.Paging, usersCount, "Permissions")
		})
}

// FindPermission loads one permission.
func (r *Roles) FindPermission(ctx context.Context, id uint) (*models.Permission, error) {
	var p models.Permission
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// PermissionsByNames loads the permissions named in names and reports the
// names that do not exist.
func (r *Roles) PermissionsByNames(ctx context.Context, names []string) ([]models.Permission, []string, error) {
	var found []models.Permission
	if len(names) == 0 {
		return found, nil, nil
	}
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&found).Error; err != nil {
		return nil, nil, err
	}
	return found, missing(names, found, func(m models.Permission) string { return m.Name }), nil
}

// SearchPermissions returns a cached page of permissions.
func (r *Roles) SearchPermissions(ctx context.Context, q ListQuery) (Page[models.Permission], error) {
	q.Paging = q.Paging.normalize()
	return cache.Remember(ctx, r.cache, cache.Permissions, cache.KindList, cache.Filters{"search": q.Search}, q.Page, q.PerPage,
		func() (Page[models.Permission], error) {
			db := r.db.WithContext(ctx).Model(&models.Permission{})
			db = searchAny(db, q.Search, "permissions.name", "permissions.description")
			return paginate[models.Permission](db, "permissions", q.Paging, "")
		})
}

func missing[T any](names []string, found []T, name func(T) string) []string {
	have := make(map[string]bool, len(found))
	for _, f := range found {
		have[name(f)] = true
	}
	var out []string
	for _, n := range names {
		if !have[n] {
			out = append(out, n)
			have[n] = true
		}
	}
	return out
}
