package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/validation"
)

func TestRoleLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.role(t, "editor", "product:create", "product:update")
	assert.ElementsMatch(t, []string{"product:create", "product:update"}, r.PermissionNames())
	assert.Contains(t, e.events.Types(), events.RoleChanged)

	_, err := e.roles.UpdateRole(ctx, 0, r.ID, validation.Input{"permissions": []any{"product:delete"}})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr, "unknown permission")

	_, err = e.roles.UpdateRole(ctx, 0, r.ID, validation.Input{"permissions": []any{"not a permission"}})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Violations, "permissions.0")

	before := e.grants.all
	got, err := e.roles.UpdateRole(ctx, 0, r.ID, validation.Input{"permissions": []any{"product:create"}, "description": "Edits"})
	require.NoError(t, err)
	assert.Equal(t, []string{"product:create"}, got.PermissionNames())
	assert.Equal(t, before+1, e.grants.all)

	u := e.user(t, "Ada", "editor")
	err = e.roles.DeleteRole(ctx, 0, r.ID)
	require.ErrorIs(t, err, ErrBusinessRule)
	assert.Contains(t, err.Error(), "editor")

	require.NoError(t, e.users.DeleteUser(ctx, 0, u.ID))
	require.NoError(t, e.roles.DeleteRole(ctx, 0, r.ID))
	_, err = e.roles.GetRole(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSystemRoleCannotBeDeleted(t *testing.T) {
	e := newEnv(t)
	admin := models.Role{Name: "admin", IsSystem: true}
	require.NoError(t, e.db.Create(&admin).Error)

	err := e.roles.DeleteRole(context.Background(), 0, admin.ID)
	require.ErrorIs(t, err, ErrBusinessRule)

	_, err = e.roles.UpdateRole(context.Background(), 0, admin.ID, validation.Input{"name": "root"})
	require.ErrorIs(t, err, ErrBusinessRule)
}

func TestPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.roles.CreatePermission(ctx, 0, validation.Input{"name": "nocolon"})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)

	p, err := e.roles.CreatePermission(ctx, 0, validation.Input{"name": "report:export", "description": "Export reports"})
	require.NoError(t, err)
	r := e.role(t, "analyst", "report:export")
	require.Len(t, r.Permissions, 1)

	p, err = e.roles.UpdatePermission(ctx, 0, p.ID, validation.Input{"description": "Export"})
	require.NoError(t, err)
	assert.Equal(t, "Export", p.Description)

	require.NoError(t, e.roles.DeletePermission(ctx, 0, p.ID))
	got, err := e.roles.GetRole(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Permissions)

	page, err := e.roles.SearchPermissions(ctx, repository.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	roles, err := e.roles.SearchRoles(ctx, repository.ListQuery{Search: "analyst"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, roles.Total)
}
