// Package policy wires the permission gate to the database and exposes it
// as HTTP middleware.
package policy

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/auth"
	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/httpx"
)

// AuthGate holds the configured HybridGate with caching.
type AuthGate struct {
	Gate     *gate.HybridGate[uint]
	Resolver *gate.CachedResolver[uint]
}

// NewAuthGate creates a gate whose grants are read from the database and
// cached for ttl.
func NewAuthGate(db *gorm.DB, ttl time.Duration) *AuthGate {
	cached := gate.NewCachedResolver[uint](NewDBRoleResolver(db), ttl)
	return &AuthGate{
		Gate:     gate.NewHybridGate[uint](cached),
		Resolver: cached,
	}
}

// RegisterPolicy adds a resource policy.
func (ag *AuthGate) RegisterPolicy(resourceType string, p gate.Policy[uint]) {
	ag.Gate.Register(resourceType, p)
}

// Authorize checks the request's user against resourceType:action and the
// resource policy, if any.
func (ag *AuthGate) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return gate.ErrUnauthorized
	}
	return ag.Gate.Authorize(ctx, userID, action, resourceType, resource)
}

func (ag *AuthGate) Can(ctx context.Context, action gate.Action, resourceType string, resource any) bool {
	return ag.Authorize(ctx, action, resourceType, resource) == nil
}

// CanRole checks role permissions only.
func (ag *AuthGate) CanRole(ctx context.Context, action gate.Action, resourceType string) bool {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return false
	}
	return ag.Gate.CanRole(ctx, userID, action, resourceType)
}

// IsAdmin reports whether the user holds "*:*".
func (ag *AuthGate) IsAdmin(ctx context.Context, userID uint) bool {
	grants, err := ag.Resolver.Resolve(ctx, userID)
	return err == nil && grants.IsSuperAdmin()
}

// InvalidateUser clears the cached grants of one user.
func (ag *AuthGate) InvalidateUser(userID uint) {
	ag.Resolver.Invalidate(userID)
}

// InvalidateAll clears every cached grant set.
func (ag *AuthGate) InvalidateAll() {
	ag.Resolver.InvalidateAll()
}

// RequirePermission returns middleware that checks a role permission.
func (ag *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserIDFromContext(r.Context()); !ok {
				httpx.Fail(w, http.StatusUnauthorized, "Unauthenticated.", nil)
				return
			}
			if !ag.CanRole(r.Context(), action, resourceType) {
				httpx.Fail(w, http.StatusForbidden, "This action is unauthorized.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that only lets "*:*" holders through.
func (ag *AuthGate) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "Unauthenticated.", nil)
				return
			}
			if !ag.IsAdmin(r.Context(), userID) {
				httpx.Fail(w, http.StatusForbidden, "This action is unauthorized.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
