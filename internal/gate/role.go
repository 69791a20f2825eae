package gate

import (
	"context"
	"sort"
)

// Role is a named set of permissions. A user may hold several roles.
type Role interface {
	ID() uint
	Name() string
	Permissions() []Permission
}

// Grants is the union of everything a user holds through their roles.
type Grants struct {
	roles []Role
}

// NewGrants bundles roles into a Grants value.
func NewGrants(roles ...Role) Grants {
	return Grants{roles: roles}
}

// Empty reports whether no role is held.
func (g Grants) Empty() bool { return len(g.roles) == 0 }

// Allows reports whether any held role covers the requested permission.
func (g Grants) Allows(requested Permission) bool {
	for _, r := range g.roles {
		for _, p := range r.Permissions() {
			if p.Matches(requested) {
				return true
			}
		}
	}
	return false
}

// IsSuperAdmin reports whether a held role carries "*:*".
func (g Grants) IsSuperAdmin() bool {
	for _, r := range g.roles {
		for _, p := range r.Permissions() {
			if p == PermissionSuperAdmin {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether a role with the given name is held.
func (g Grants) HasRole(name string) bool {
	for _, r := range g.roles {
		if r.Name() == name {
			return true
		}
	}
	return false
}

// RoleNames returns the sorted names of the held roles.
func (g Grants) RoleNames() []string {
	names := make([]string, 0, len(g.roles))
	for _, r := range g.roles {
		names = append(names, r.Name())
	}
	sort.Strings(names)
	return names
}

// RoleResolver resolves a user to the roles they hold.
// U is the user type (e.g., uint for userID).
type RoleResolver[U any] interface {
	Resolve(ctx context.Context, user U) (Grants, error)
}

// StaticRole is a simple in-memory role implementation.
type StaticRole struct {
	id          uint
	name        string
	permissions []Permission
}

// NewStaticRole creates a role with the given permissions.
func NewStaticRole(id uint, name string, permissions ...Permission) *StaticRole {
	return &StaticRole{id: id, name: name, permissions: permissions}
}

func (r *StaticRole) ID() uint                  { return r.id }
func (r *StaticRole) Name() string              { return r.name }
func (r *StaticRole) Permissions() []Permission { return r.permissions }

// StaticResolver is an in-memory resolver for tests and static setups.
type StaticResolver[U comparable] struct {
	roles map[U][]Role
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver[U comparable]() *StaticResolver[U] {
	return &StaticResolver[U]{roles: make(map[U][]Role)}
}

// Set replaces the roles held by a user.
func (r *StaticResolver[U]) Set(user U, roles ...Role) {
	r.roles[user] = roles
}

// Resolve returns the grants for the given user; unknown users hold nothing.
func (r *StaticResolver[U]) Resolve(_ context.Context, user U) (Grants, error) {
	return NewGrants(r.roles[user]...), nil
}
