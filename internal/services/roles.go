package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/validation"
)

const (
	entityRole       = "role"
	entityPermission = "permission"
)

var roleCaches = []cache.Entity{cache.Roles, cache.Permissions, cache.Users}

// RoleService manages roles and permissions. Every write drops all cached
// permission sets.
type RoleService struct {
	core
	roles  *repository.Roles
	grants GrantsCache
}

// NewRoleService creates a RoleService.
func NewRoleService(db *gorm.DB, opts Options) *RoleService {
	return &RoleService{
		core:   newCore(db, opts),
		roles:  repository.NewRoles(db, opts.Cache),
		grants: opts.Grants,
	}
}

func (s *RoleService) roleChanged(ch *change, r *models.Role, action string) {
	ch.publish(events.RoleChanged, entityRole, r.ID, map[string]any{
		"action":      action,
		"name":        r.Name,
		"permissions": r.PermissionNames(),
	})
	ch.touch(roleCaches...)
	if s.grants != nil {
		ch.afterCommit(s.grants.InvalidateAll)
	}
}

func (s *RoleService) CreateRole(ctx context.Context, actor uint, in validation.Input) (*models.Role, error) {
	var r *models.Role
	err := s.mutate(ctx, actor, entityRole, "create", in, func(ch *change) error {
		data, err := roleSchema.Validate(ctx, in, validation.Options{Lookup: repository.NewLookup(ch.tx)})
		if err != nil {
			return err
		}
		r = &models.Role{Name: data.String("name"), Description: data.String("description")}
		if err := ch.tx.Create(r).Error; err != nil {
			return err
		}
		if data.Has("permissions") {
			if err := s.syncPermissions(ctx, ch, r, data.Strings("permissions")); err != nil {
				return err
			}
		}
		if err := ch.audit(entityRole, r.ID, "create", nil, roleAudit(r)); err != nil {
			return err
		}
		s.roleChanged(ch, r, "create")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRole renames or describes a role and, when permissions is present,
// replaces its permission set.
func (s *RoleService) UpdateRole(ctx context.Context, actor uint, id uint, in validation.Input) (*models.Role, error) {
	var r *models.Role
	err := s.mutate(ctx, actor, entityRole, "update", in, func(ch *change) error {
		var err error
		repo := s.roles.WithTx(ch.tx)
		if r, err = repo.Find(ctx, id); err != nil {
			return notFound(err, "Role", id)
		}
		data, err := roleSchema.Validate(ctx, in, validation.Options{
			Lookup:   repository.NewLookup(ch.tx),
			IgnoreID: id,
			Partial:  true,
		})
		if err != nil {
			return err
		}
		old := roleAudit(r)
		if data.Has("name") {
			if r.IsSystem && data.String("name") != r.Name {
				return newError(ErrBusinessRule, "Cannot rename system role %q.", r.Name)
			}
			r.Name = data.String("name")
		}
		if data.Has("description") {
			r.Description = data.String("description")
		}
		if err := ch.tx.Omit("Permissions", "Users").Save(r).Error; err != nil {
			return err
		}
		if data.Has("permissions") {
			if err := s.syncPermissions(ctx, ch, r, data.Strings("permissions")); err != nil {
				return err
			}
		}
		if err := ch.audit(entityRole, id, "update", old, roleAudit(r)); err != nil {
			return err
		}
		s.roleChanged(ch, r, "update")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RoleService) syncPermissions(ctx context.Context, ch *change, r *models.Role, names []string) error {
	perms, missing, err := s.roles.WithTx(ch.tx).PermissionsByNames(ctx, names)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return validation.NewError("permissions", "The permission "+missing[0]+" does not exist.")
	}
	assoc := ch.tx.Model(r).Association("Permissions")
	if len(perms) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(perms)
	}
	if err != nil {
		return err
	}
	r.Permissions = perms
	return nil
}

// DeleteRole removes a role that is neither a system role nor assigned to
// any user.
func (s *RoleService) DeleteRole(ctx context.Context, actor uint, id uint) error {
	return s.mutate(ctx, actor, entityRole, "delete", id, func(ch *change) error {
		r, err := s.roles.WithTx(ch.tx).Find(ctx, id)
		if err != nil {
			return notFound(err, "Role", id)
		}
		if r.IsSystem {
			return newError(ErrBusinessRule, "Cannot delete system role %q.", r.Name)
		}
		if r.UsersCount > 0 {
			return newError(ErrBusinessRule, "Cannot delete role %q because it is assigned to %d users.", r.Name, r.UsersCount)
		}
		if err := ch.tx.Model(r).Association("Permissions").Clear(); err != nil {
			return err
		}
		if err := ch.tx.Delete(&models.Role{}, id).Error; err != nil {
			return err
		}
		if err := ch.audit(entityRole, id, "delete", roleAudit(r), nil); err != nil {
			return err
		}
		s.roleChanged(ch, r, "delete")
		return nil
	})
}

func (s *RoleService) GetRole(ctx context.Context, id uint) (*models.Role, error) {
	r, err := s.roles.Find(ctx, id)
	if err != nil {
		return nil, notFound(err, "Role", id)
	}
	return r, nil
}

func (s *RoleService) SearchRoles(ctx context.Context, q repository.ListQuery) (repository.Page[models.Role], error) {
	return s.roles.Search(ctx, q)
}

func (s *RoleService) CreatePermission(ctx context.Context, actor uint, in validation.Input) (*models.Permission, error) {
	var p *models.Permission
	err := s.mutate(ctx, actor, entityPermission, "create", in, func(ch *change) error {
		data, err := permissionSchema.Validate(ctx, in, validation.Options{Lookup: repository.NewLookup(ch.tx)})
		if err != nil {
			return err
		}
		p = &models.Permission{Name: data.String("name"), Description: data.String("description")}
		if err := ch.tx.Create(p).Error; err != nil {
			return err
		}
		if err := ch.audit(entityPermission, p.ID, "create", nil, p); err != nil {
			return err
		}
		s.permissionChanged(ch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RoleService) UpdatePermission(ctx context.Context, actor uint, id uint, in validation.Input) (*models.Permission, error) {
	var p *models.Permission
	err := s.mutate(ctx, actor, entityPermission, "update", in, func(ch *change) error {
		var err error
		if p, err = s.roles.WithTx(ch.tx).FindPermission(ctx, id); err != nil {
			return notFound(err, "Permission", id)
		}
		data, err := permissionSchema.Validate(ctx, in, validation.Options{
			Lookup:   repository.NewLookup(ch.tx),
			IgnoreID: id,
			Partial:  true,
		})
		if err != nil {
			return err
		}
		old := *p
		if data.Has("name") {
			p.Name = data.String("name")
		}
		if data.Has("description") {
			p.Description = data.String("description")
		}
		if err := ch.tx.Save(p).Error; err != nil {
			return err
		}
		if err := ch.audit(entityPermission, id, "update", &old, p); err != nil {
			return err
		}
		s.permissionChanged(ch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePermission detaches the permission from every role and removes it.
func (s *RoleService) DeletePermission(ctx context.Context, actor uint, id uint) error {
	return s.mutate(ctx, actor, entityPermission, "delete", id, func(ch *change) error {
		p, err := s.roles.WithTx(ch.tx).FindPermission(ctx, id)
		if err != nil {
			return notFound(err, "Permission", id)
		}
		if err := ch.tx.Exec("DELETE FROM role_permissions WHERE permission_id = ?", id).Error; err != nil {
			return err
		}
		if err := ch.tx.Delete(p).Error; err != nil {
			return err
		}
		if err := ch.audit(entityPermission, id, "delete", p, nil); err != nil {
			return err
		}
		s.permissionChanged(ch)
		return nil
	})
}

func (s *RoleService) SearchPermissions(ctx context.Context, q repository.ListQuery) (repository.Page[models.Permission], error) {
	return s.roles.SearchPermissions(ctx, q)
}

func (s *RoleService) permissionChanged(ch *change) {
	ch.touch(roleCaches...)
	if s.grants != nil {
		ch.afterCommit(s.grants.InvalidateAll)
	}
}

// roleAudit is the audit view of a role: its attributes and permission names.
func roleAudit(r *models.Role) map[string]any {
	m := snapshot(r)
	if m == nil {
		m = map[string]any{}
	}
	m["permission_names"] = r.PermissionNames()
	return m
}
