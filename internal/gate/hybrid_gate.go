// Package gate provides role/permission authorization with optional
// per-resource policies. HybridGate checks "resource:action" permissions
// held through the user's roles, then the resource policy if one is
// registered. The package has no dependency on domain models.
package gate

import "context"

// HybridGate combines role-based permissions with resource policies.
// Authorization flow:
//  1. the user is non-zero
//  2. one of the user's roles grants resource:action
//  3. if a resource policy is registered and a resource is given, it agrees
type HybridGate[U comparable] struct {
	resolver RoleResolver[U]
	policies map[string]Policy[U]
}

// NewHybridGate creates a hybrid gate with the given role resolver.
func NewHybridGate[U comparable](resolver RoleResolver[U]) *HybridGate[U] {
	return &HybridGate[U]{
		resolver: resolver,
		policies: make(map[string]Policy[U]),
	}
}

// Register adds a resource-specific policy.
func (g *HybridGate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize returns nil when the user may perform action on the resource.
func (g *HybridGate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	if !g.CanRole(ctx, user, action, resourceType) {
		return ErrUnauthorized
	}
	if resource != nil {
		if policy, ok := g.policies[resourceType]; ok && !policy.Can(ctx, user, action, resource) {
			return ErrUnauthorized
		}
	}
	return nil
}

// Can is Authorize as a bool.
func (g *HybridGate[U]) Can(ctx context.Context, user U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}

// CanRole checks only the role permissions, without resource policies.
// Useful before a specific resource is loaded.
func (g *HybridGate[U]) CanRole(ctx context.Context, user U, action Action, resourceType string) bool {
	var zero U
	if user == zero {
		return false
	}
	grants, err := g.resolver.Resolve(ctx, user)
	if err != nil {
		return false
	}
	return grants.Allows(NewPermission(resourceType, action))
}

// Grants exposes the resolved grants for a user.
func (g *HybridGate[U]) Grants(ctx context.Context, user U) (Grants, error) {
	return g.resolver.Resolve(ctx, user)
}
