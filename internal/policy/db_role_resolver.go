package policy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/models"
)

// DBRoleResolver loads a user's roles and their permissions from the
// database. Missing and inactive users hold nothing.
type DBRoleResolver struct {
	DB *gorm.DB
}

func NewDBRoleResolver(db *gorm.DB) *DBRoleResolver {
	return &DBRoleResolver{DB: db}
}

// Resolve implements gate.RoleResolver.
func (r *DBRoleResolver) Resolve(ctx context.Context, userID uint) (gate.Grants, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Preload("Roles.Permissions").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gate.NewGrants(), nil
	}
	if err != nil {
		return gate.Grants{}, err
	}
	if !user.IsActive() {
		return gate.NewGrants(), nil
	}
	roles := make([]gate.Role, len(user.Roles))
	for i := range user.Roles {
		roles[i] = &dbRoleAdapter{role: &user.Roles[i]}
	}
	return gate.NewGrants(roles...), nil
}

// dbRoleAdapter wraps a models.Role to implement gate.Role.
type dbRoleAdapter struct {
	role *models.Role
}

func (a *dbRoleAdapter) ID() uint     { return a.role.ID }
func (a *dbRoleAdapter) Name() string { return a.role.Name }

func (a *dbRoleAdapter) Permissions() []gate.Permission {
	out := make([]gate.Permission, len(a.role.Permissions))
	for i, p := range a.role.Permissions {
		out[i] = gate.Permission(p.Name)
	}
	return out
}
