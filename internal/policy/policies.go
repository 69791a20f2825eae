package policy

import (
	"context"

	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/models"
)

// Identified is implemented by resources that are users themselves.
type Identified interface {
	GetID() uint
}

// SelfProtectionPolicy stops a user from deleting their own account.
// Every other action is left to role permissions.
type SelfProtectionPolicy struct{}

func NewSelfProtectionPolicy() *SelfProtectionPolicy {
	return &SelfProtectionPolicy{}
}

func (p *SelfProtectionPolicy) Can(_ context.Context, userID uint, action gate.Action, resource any) bool {
	if action != gate.ActionDelete || resource == nil {
		return true
	}
	target, ok := resource.(Identified)
	if !ok {
		return true
	}
	return target.GetID() != userID
}

// AdminBypassPolicy wraps another policy and always allows admins.
type AdminBypassPolicy struct {
	inner       gate.Policy[uint]
	isAdminFunc func(ctx context.Context, userID uint) bool
}

func NewAdminBypassPolicy(inner gate.Policy[uint], isAdminFunc func(ctx context.Context, userID uint) bool) *AdminBypassPolicy {
	return &AdminBypassPolicy{inner: inner, isAdminFunc: isAdminFunc}
}

func (p *AdminBypassPolicy) Can(ctx context.Context, userID uint, action gate.Action, resource any) bool {
	if p.isAdminFunc(ctx, userID) {
		return true
	}
	return p.inner.Can(ctx, userID, action, resource)
}

// SystemRolePolicy forbids changing or deleting built-in roles. Wrap it in
// AdminBypassPolicy to let administrators through.
type SystemRolePolicy struct{}

func NewSystemRolePolicy() *SystemRolePolicy {
	return &SystemRolePolicy{}
}

func (p *SystemRolePolicy) Can(_ context.Context, _ uint, action gate.Action, resource any) bool {
	role, ok := resource.(*models.Role)
	if !ok || !role.IsSystem {
		return true
	}
	return action != gate.ActionUpdate && action != gate.ActionDelete
}

// Register installs the catalog's resource policies on ag.
func Register(ag *AuthGate) {
	ag.RegisterPolicy("user", NewSelfProtectionPolicy())
	ag.RegisterPolicy("role", NewAdminBypassPolicy(NewSystemRolePolicy(), ag.IsAdmin))
}
