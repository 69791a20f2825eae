package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/validation"
)

const entityUser = "user"

var userCaches = []cache.Entity{cache.Users, cache.Roles}

// UserService manages accounts and their role assignments.
type UserService struct {
	core
	users  *repository.Users
	roles  *repository.Roles
	grants GrantsCache
	cost   int
}

// NewUserService creates a UserService.
func NewUserService(db *gorm.DB, opts Options) *UserService {
	cost := opts.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{
		core:   newCore(db, opts),
		users:  repository.NewUsers(db, opts.Cache),
		roles:  repository.NewRoles(db, opts.Cache),
		grants: opts.Grants,
		cost:   cost,
	}
}

// CreateUser stores a new account. Omitting is_active creates an inactive
// account.
func (s *UserService) CreateUser(ctx context.Context, actor uint, in validation.Input) (*models.User, error) {
	var u *models.User
	err := s.mutate(ctx, actor, entityUser, "create", redact(in), func(ch *change) error {
		data, err := createUserSchema.Validate(ctx, in, validation.Options{Lookup: repository.NewLookup(ch.tx)})
		if err != nil {
			return err
		}
		hash, err := s.hash(data.String("password"))
		if err != nil {
			return err
		}
		u = &models.User{
			Name:     data.String("name"),
			Email:    data.String("email"),
			Password: hash,
		}
		if data.Bool("is_active") {
			now := ch.now
			u.EmailVerifiedAt = &now
		}
		if err := ch.tx.Create(u).Error; err != nil {
			return err
		}
		if data.Has("roles") {
			if err := s.syncRoles(ctx, ch, u, data.Strings("roles")); err != nil {
				return err
			}
		}
		if err := ch.audit(entityUser, u.ID, "create", nil, u); err != nil {
			return err
		}
		ch.publish(events.UserCreated, entityUser, u.ID, u)
		ch.touch(userCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser applies a partial update. The password changes only when a
// non-empty one is supplied.
func (s *UserService) UpdateUser(ctx context.Context, actor uint, id uint, in validation.Input) (*models.User, error) {
	var u *models.User
	err := s.mutate(ctx, actor, entityUser, "update", redact(in), func(ch *change) error {
		var err error
		if u, err = s.users.WithTx(ch.tx).Find(ctx, id); err != nil {
			return notFound(err, "User", id)
		}
		data, err := updateUserSchema.Validate(ctx, in, validation.Options{
			Lookup:   repository.NewLookup(ch.tx),
			IgnoreID: id,
			Partial:  true,
		})
		if err != nil {
			return err
		}
		old := *u
		if data.Has("name") {
			u.Name = data.String("name")
		}
		if data.Has("email") {
			u.Email = data.String("email")
		}
		if pw := data.String("password"); pw != "" {
			if u.Password, err = s.hash(pw); err != nil {
				return err
			}
		}
		if data.Has("is_active") && !data.IsNull("is_active") {
			setActive(u, data.Bool("is_active"), ch.now)
		}
		if err := ch.tx.Omit("Roles").Save(u).Error; err != nil {
			return err
		}
		if data.Has("roles") {
			if err := s.syncRoles(ctx, ch, u, data.Strings("roles")); err != nil {
				return err
			}
		}
		if err := ch.audit(entityUser, id, "update", &old, u); err != nil {
			return err
		}
		ch.publish(events.UserUpdated, entityUser, id, u)
		ch.touch(userCaches...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func setActive(u *models.User, active bool, now time.Time) {
	switch {
	case active && u.EmailVerifiedAt == nil:
		u.EmailVerifiedAt = &now
	case !active:
		u.EmailVerifiedAt = nil
	}
}

// syncRoles replaces the user's roles with the named ones.
func (s *UserService) syncRoles(ctx context.Context, ch *change, u *models.User, names []string) error {
	roles, missing, err := s.roles.WithTx(ch.tx).FindByNames(ctx, names)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return newError(ErrRoleNotFound, "Role %q not found.", missing[0])
	}
	assoc := ch.tx.Model(u).Association("Roles")
	if len(roles) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(roles)
	}
	if err != nil {
		return err
	}
	u.Roles = roles
	s.dropGrants(ch, u.ID)
	return nil
}

// DeleteUser removes an account other than the actor's own.
func (s *UserService) DeleteUser(ctx context.Context, actor uint, id uint) error {
	if actor != 0 && actor == id {
		return newError(ErrSelfDeletion, "You cannot delete your own account.")
	}
	return s.mutate(ctx, actor, entityUser, "delete", id, func(ch *change) error {
		u, err := s.users.WithTx(ch.tx).Find(ctx, id)
		if err != nil {
			return notFound(err, "User", id)
		}
		return s.deleteUsers(ch, []models.User{*u})
	})
}

// BulkDeleteUsers removes every matched account. Nothing is deleted when
// the actor is among ids.
func (s *UserService) BulkDeleteUsers(ctx context.Context, actor uint, ids []uint) (int, error) {
	if actor != 0 && slices.Contains(ids, actor) {
		return 0, newError(ErrSelfDeletion, "You cannot delete your own account.")
	}
	var n int
	err := s.mutate(ctx, actor, entityUser, "bulk_delete", ids, func(ch *change) error {
		users, err := s.users.WithTx(ch.tx).FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return newError(ErrNotFound, "No matching users.")
		}
		n = len(users)
		return s.deleteUsers(ch, users)
	})
	return n, err
}

func (s *UserService) deleteUsers(ch *change, users []models.User) error {
	for i := range users {
		u := &users[i]
		if err := ch.tx.Model(u).Association("Roles").Clear(); err != nil {
			return err
		}
		if err := ch.tx.Delete(u).Error; err != nil {
			return err
		}
		if err := ch.audit(entityUser, u.ID, "delete", u, nil); err != nil {
			return err
		}
		ch.publish(events.UserDeleted, entityUser, u.ID, map[string]any{"email": u.Email})
		s.dropGrants(ch, u.ID)
	}
	ch.touch(userCaches...)
	return nil
}

// BulkUserAction runs activate, deactivate or delete over ids.
func (s *UserService) BulkUserAction(ctx context.Context, actor uint, ids []uint, action string) (int, error) {
	switch action {
	case ActionDelete:
		return s.BulkDeleteUsers(ctx, actor, ids)
	case ActionActivate, ActionDeactivate:
	default:
		return 0, newError(ErrInvalidOperation, "Invalid bulk action %q.", action)
	}
	var n int
	err := s.mutate(ctx, actor, entityUser, action, ids, func(ch *change) error {
		users, err := s.users.WithTx(ch.tx).FindMany(ctx, ids)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return newError(ErrNotFound, "No matching users.")
		}
		for i := range users {
			if err := s.saveActive(ch, &users[i], action == ActionActivate); err != nil {
				return err
			}
		}
		n = len(users)
		return nil
	})
	return n, err
}

// ToggleUserStatus flips the account between active and inactive.
func (s *UserService) ToggleUserStatus(ctx context.Context, actor uint, id uint) (*models.User, error) {
	var u *models.User
	err := s.mutate(ctx, actor, entityUser, "toggle", id, func(ch *change) error {
		var err error
		if u, err = s.users.WithTx(ch.tx).Find(ctx, id); err != nil {
			return notFound(err, "User", id)
		}
		return s.saveActive(ch, u, !u.IsActive())
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) saveActive(ch *change, u *models.User, active bool) error {
	if u.IsActive() == active {
		return nil
	}
	old := map[string]any{"is_active": u.IsActive()}
	setActive(u, active, ch.now)
	if err := ch.tx.Model(u).Update("email_verified_at", u.EmailVerifiedAt).Error; err != nil {
		return err
	}
	cur := map[string]any{"is_active": active}
	if err := ch.audit(entityUser, u.ID, "update", old, cur); err != nil {
		return err
	}
	ch.publish(events.UserUpdated, entityUser, u.ID, cur)
	ch.touch(userCaches...)
	return nil
}

// ResetUserPassword stores a fresh random password and returns it. The
// plaintext is never logged.
func (s *UserService) ResetUserPassword(ctx context.Context, actor uint, id uint) (string, error) {
	var password string
	err := s.mutate(ctx, actor, entityUser, "reset_password", id, func(ch *change) error {
		u, err := s.users.WithTx(ch.tx).Find(ctx, id)
		if err != nil {
			return notFound(err, "User", id)
		}
		if password, err = s.newPassword(); err != nil {
			return err
		}
		hash, err := s.hash(password)
		if err != nil {
			return err
		}
		if err := ch.tx.Model(u).Update("password", hash).Error; err != nil {
			return err
		}
		marker := map[string]any{"password": "[reset]"}
		return ch.audit(entityUser, id, "reset_password", nil, marker)
	})
	if err != nil {
		return "", err
	}
	return password, nil
}

// AssignRoleToUser adds the named role to the user.
func (s *UserService) AssignRoleToUser(ctx context.Context, actor uint, id uint, roleName string) (*models.User, error) {
	return s.changeRole(ctx, actor, id, roleName, "assign_role")
}

// RemoveRoleFromUser removes the named role from the user.
func (s *UserService) RemoveRoleFromUser(ctx context.Context, actor uint, id uint, roleName string) (*models.User, error) {
	return s.changeRole(ctx, actor, id, roleName, "remove_role")
}

func (s *UserService) changeRole(ctx context.Context, actor, id uint, roleName, op string) (*models.User, error) {
	var u *models.User
	input := map[string]any{"id": id, "role": roleName}
	err := s.mutate(ctx, actor, entityUser, op, input, func(ch *change) error {
		var err error
		users := s.users.WithTx(ch.tx)
		if u, err = users.Find(ctx, id); err != nil {
			return notFound(err, "User", id)
		}
		role, err := s.roles.WithTx(ch.tx).FindByName(ctx, roleName)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrRoleNotFound, "Role %q not found.", roleName)
		}
		if err != nil {
			return err
		}
		before := u.RoleNames()
		assoc := ch.tx.Model(u).Association("Roles")
		if op == "assign_role" {
			err = assoc.Append(role)
		} else {
			err = assoc.Delete(role)
		}
		if err != nil {
			return err
		}
		if u, err = users.Find(ctx, id); err != nil {
			return err
		}
		old := map[string]any{"roles": strings.Join(before, ",")}
		cur := map[string]any{"roles": strings.Join(u.RoleNames(), ",")}
		if err := ch.audit(entityUser, id, op, old, cur); err != nil {
			return err
		}
		ch.publish(events.UserUpdated, entityUser, id, map[string]any{"roles": u.RoleNames()})
		ch.touch(userCaches...)
		s.dropGrants(ch, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks credentials for login. Unknown emails and wrong
// passwords fail the same way.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrInvalidCredentials, "Invalid email or password.")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, newError(ErrInvalidCredentials, "Invalid email or password.")
	}
	if !u.IsActive() {
		return nil, newError(ErrInactiveUser, "This account is inactive.")
	}
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.users.Find(ctx, id)
	if err != nil {
		return nil, notFound(err, "User", id)
	}
	return u, nil
}

func (s *UserService) SearchUsers(ctx context.Context, q repository.UserQuery) (repository.Page[models.User], error) {
	return s.users.Search(ctx, q)
}

func (s *UserService) UserStats(ctx context.Context) (repository.UserStats, error) {
	return s.users.Stats(ctx)
}

func (s *UserService) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (s *UserService) dropGrants(ch *change, user uint) {
	if s.grants != nil {
		ch.afterCommit(func() { s.grants.Invalidate(user) })
	}
}

// redact hides password fields from logged input.
func redact(in validation.Input) validation.Input {
	out := make(validation.Input, len(in))
	for k, v := range in {
		if strings.HasPrefix(k, "password") {
			v = "[redacted]"
		}
		out[k] = v
	}
	return out
}
