package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/validation"
)

func newUserInput(email string) validation.Input {
	return validation.Input{
		"name":                  "Someone",
		"email":                 email,
		"password":              "longenough",
		"password_confirmation": "longenough",
	}
}

func TestCreateUser_ActiveFlag(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		active any
		want   bool
	}{
		{"omitted defaults to inactive", nil, false},
		{"explicit true", true, true},
		{"explicit false", false, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newUserInput("u" + string(rune('a'+i)) + "@example.com")
			if tt.active != nil {
				in["is_active"] = tt.active
			}
			u, err := e.users.CreateUser(ctx, 0, in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.IsActive())
		})
	}
}

func TestCreateUser_HashesPasswordAndLowercasesEmail(t *testing.T) {
	e := newEnv(t)
	u, err := e.users.CreateUser(context.Background(), 0, newUserInput("Mixed@Example.COM"))
	require.NoError(t, err)
	assert.Equal(t, "mixed@example.com", u.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("longenough")))

	var row models.AuditLog
	require.NoError(t, e.db.Where("entity_type = ?", entityUser).Take(&row).Error)
	assert.NotContains(t, string(row.NewValues), u.Password)
}

func TestCreateUser_Validation(t *testing.T) {
	e := newEnv(t)
	e.user(t, "Taken")
	ctx := context.Background()

	tests := []struct {
		name  string
		edit  func(validation.Input)
		field string
	}{
		{"bad email", func(in validation.Input) { in["email"] = "not-an-email" }, "email"},
		{"duplicate email", func(in validation.Input) { in["email"] = "TAKEN@example.com" }, "email"},
		{"short password", func(in validation.Input) { in["password"], in["password_confirmation"] = "short", "short" }, "password"},
		{"unconfirmed password", func(in validation.Input) { in["password_confirmation"] = "different" }, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newUserInput("fresh@example.com")
			tt.edit(in)
			_, err := e.users.CreateUser(ctx, 0, in)
			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Violations, tt.field)
		})
	}
}

func TestCreateUser_UnknownRoleRollsBack(t *testing.T) {
	e := newEnv(t)
	in := newUserInput("ghost@example.com")
	in["roles"] = []any{"nope"}

	_, err := e.users.CreateUser(context.Background(), 0, in)
	require.ErrorIs(t, err, ErrRoleNotFound)

	var n int64
	e.db.Model(&models.User{}).Count(&n)
	assert.Zero(t, n)
}

func TestUpdateUser(t *testing.T) {
	e := newEnv(t)
	e.role(t, "manager")
	u := e.user(t, "Ada")
	other := e.user(t, "Bob")
	ctx := context.Background()

	got, err := e.users.UpdateUser(ctx, 0, u.ID, validation.Input{"email": "ada@example.com", "name": "Ada L."})
	require.NoError(t, err, "own email is not a duplicate")
	assert.Equal(t, "Ada L.", got.Name)
	assert.Equal(t, u.Password, got.Password, "password untouched without a new one")

	_, err = e.users.UpdateUser(ctx, 0, u.ID, validation.Input{"email": other.Email})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)

	_, err = e.users.UpdateUser(ctx, 0, u.ID, validation.Input{"password": "newpassword"})
	require.ErrorAs(t, err, &verr, "confirmation required")

	got, err = e.users.UpdateUser(ctx, 0, u.ID, validation.Input{
		"password": "newpassword", "password_confirmation": "newpassword",
		"roles": []any{"manager"}, "is_active": false,
	})
	require.NoError(t, err)
	assert.False(t, got.IsActive())
	assert.Equal(t, []string{"manager"}, got.RoleNames())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.Password), []byte("newpassword")))
	assert.Contains(t, e.grants.users, u.ID)
}

func TestDeleteUser_SelfGuard(t *testing.T) {
	e := newEnv(t)
	a := e.user(t, "Ada")
	ctx := context.Background()

	err := e.users.DeleteUser(ctx, a.ID, a.ID)
	require.ErrorIs(t, err, ErrSelfDeletion)
	_, err = e.users.GetUser(ctx, a.ID)
	require.NoError(t, err)

	b := e.user(t, "Bob")
	require.NoError(t, e.users.DeleteUser(ctx, a.ID, b.ID))
	_, err = e.users.GetUser(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkDeleteUsers_SelfGuardDeletesNothing(t *testing.T) {
	e := newEnv(t)
	e.role(t, "user")
	a := e.user(t, "Ada", "user")
	b := e.user(t, "Bob", "user")
	ctx := context.Background()

	_, err := e.users.BulkDeleteUsers(ctx, a.ID, []uint{a.ID, b.ID})
	require.ErrorIs(t, err, ErrSelfDeletion)
	_, err = e.users.GetUser(ctx, b.ID)
	require.NoError(t, err, "no partial deletion")

	_, err = e.users.BulkUserAction(ctx, a.ID, []uint{b.ID, a.ID}, ActionDelete)
	require.ErrorIs(t, err, ErrSelfDeletion)

	n, err := e.users.BulkDeleteUsers(ctx, a.ID, []uint{b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var links int64
	e.db.Table("user_roles").Where("user_id = ?", b.ID).Count(&links)
	assert.Zero(t, links)
}

func TestBulkUserActionAndToggle(t *testing.T) {
	e := newEnv(t)
	a := e.user(t, "Ada")
	b := e.user(t, "Bob")
	ctx := context.Background()

	n, err := e.users.BulkUserAction(ctx, 0, []uint{a.ID, b.ID}, ActionDeactivate)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	st, err := e.users.UserStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Inactive)

	_, err = e.users.BulkUserAction(ctx, 0, []uint{a.ID}, "ban")
	assert.ErrorIs(t, err, ErrInvalidOperation)

	once, err := e.users.ToggleUserStatus(ctx, 0, a.ID)
	require.NoError(t, err)
	assert.True(t, once.IsActive())
	twice, err := e.users.ToggleUserStatus(ctx, 0, a.ID)
	require.NoError(t, err)
	assert.False(t, twice.IsActive())
}

func TestResetUserPassword(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "Ada")
	ctx := context.Background()

	pw, err := e.users.ResetUserPassword(ctx, 0, u.ID)
	require.NoError(t, err)
	assert.Len(t, pw, 12)

	got, err := e.users.Authenticate(ctx, u.Email, pw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = e.users.Authenticate(ctx, u.Email, "secret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var row models.AuditLog
	require.NoError(t, e.db.Where("action = ?", "reset_password").Take(&row).Error)
	assert.NotContains(t, string(row.NewValues), pw)
}

func TestAssignAndRemoveRole(t *testing.T) {
	e := newEnv(t)
	e.role(t, "manager", "product:*")
	u := e.user(t, "Ada")
	ctx := context.Background()

	_, err := e.users.AssignRoleToUser(ctx, 0, u.ID, "wizard")
	require.ErrorIs(t, err, ErrRoleNotFound)
	_, err = e.users.RemoveRoleFromUser(ctx, 0, u.ID, "wizard")
	require.ErrorIs(t, err, ErrRoleNotFound)

	e.grants.users = nil
	got, err := e.users.AssignRoleToUser(ctx, 0, u.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, []string{"manager"}, got.RoleNames())
	assert.Equal(t, []uint{u.ID}, e.grants.users)

	page, err := e.users.SearchUsers(ctx, repository.UserQuery{Role: "manager"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	got, err = e.users.RemoveRoleFromUser(ctx, 0, u.ID, "manager")
	require.NoError(t, err)
	assert.Empty(t, got.Roles)
}

func TestAuthenticate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.users.CreateUser(ctx, 0, newUserInput("idle@example.com"))
	require.NoError(t, err)

	_, err = e.users.Authenticate(ctx, "idle@example.com", "longenough")
	assert.ErrorIs(t, err, ErrInactiveUser)
	_, err = e.users.Authenticate(ctx, "nobody@example.com", "longenough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
