package gate_test

import (
	"context"
	"testing"

	"github.com/diewo77/go-catalog/internal/gate"
)

type policyFunc func(ctx context.Context, user uint, action gate.Action, resource any) bool

func (f policyFunc) Can(ctx context.Context, user uint, action gate.Action, resource any) bool {
	return f(ctx, user, action, resource)
}

type ownedThing struct{ OwnerID uint }

func ownerPolicy() gate.Policy[uint] {
	return policyFunc(func(_ context.Context, user uint, _ gate.Action, resource any) bool {
		r, ok := resource.(*ownedThing)
		return ok && r.OwnerID == user
	})
}

func TestHybridGate_RoleOnly(t *testing.T) {
	resolver := gate.NewStaticResolver[uint]()
	resolver.Set(1, gate.NewStaticRole(1, "editor",
		gate.NewPermission("product", gate.ActionCreate),
		gate.NewPermission("product", gate.ActionView),
	))
	g := gate.NewHybridGate[uint](resolver)
	ctx := context.Background()

	if !g.Can(ctx, 1, gate.ActionCreate, "product", nil) {
		t.Error("user with permission should be allowed")
	}
	if g.Can(ctx, 1, gate.ActionDelete, "product", nil) {
		t.Error("user without permission should be denied")
	}
	if g.Can(ctx, 2, gate.ActionView, "product", nil) {
		t.Error("user without roles should be denied")
	}
	if g.Can(ctx, 0, gate.ActionView, "product", nil) {
		t.Error("zero user should be denied")
	}
}

func TestHybridGate_WithResourcePolicy(t *testing.T) {
	resolver := gate.NewStaticResolver[uint]()
	editor := gate.NewStaticRole(1, "editor", gate.NewPermission("user", gate.ActionUpdate))
	resolver.Set(1, editor)
	resolver.Set(2, editor)
	g := gate.NewHybridGate[uint](resolver)
	g.Register("user", ownerPolicy())
	ctx := context.Background()

	res := &ownedThing{OwnerID: 1}
	if !g.Can(ctx, 1, gate.ActionUpdate, "user", res) {
		t.Error("owner should be allowed")
	}
	if g.Can(ctx, 2, gate.ActionUpdate, "user", res) {
		t.Error("non-owner should be denied even with role permission")
	}
	if !g.CanRole(ctx, 2, gate.ActionUpdate, "user") {
		t.Error("CanRole should ignore resource policies")
	}
}
