package gate_test

import (
	"testing"

	"github.com/diewo77/go-catalog/internal/gate"
)

func TestPermission_NewPermission(t *testing.T) {
	perm := gate.NewPermission("product", gate.ActionStock)
	if perm != "product:stock" {
		t.Errorf("expected 'product:stock', got '%s'", perm)
	}
}

func TestPermission_Parse(t *testing.T) {
	res, act := gate.Permission("brand:view").Parse()
	if res != "brand" || act != gate.ActionView {
		t.Errorf("unexpected parse result %q %q", res, act)
	}
	res, act = gate.Permission("invalid").Parse()
	if res != "" || act != "" {
		t.Errorf("expected empty strings, got '%s' and '%s'", res, act)
	}
}

func TestPermission_Valid(t *testing.T) {
	cases := map[gate.Permission]bool{
		"product:create": true,
		"*:*":            true,
		"category:*":     true,
		"product":        false,
		":create":        false,
		"product:":       false,
		"product :list":  false,
	}
	for perm, want := range cases {
		if got := perm.Valid(); got != want {
			t.Errorf("%q.Valid() = %v, want %v", perm, got, want)
		}
	}
}

func TestPermission_Matches(t *testing.T) {
	tests := []struct {
		held, requested gate.Permission
		want            bool
	}{
		{"product:create", "product:create", true},
		{"product:create", "product:delete", false},
		{"product:create", "brand:create", false},
		{"*:*", "user:delete", true},
		{"product:*", "product:stock", true},
		{"product:*", "category:list", false},
	}
	for _, tt := range tests {
		if got := tt.held.Matches(tt.requested); got != tt.want {
			t.Errorf("%s.Matches(%s) = %v, want %v", tt.held, tt.requested, got, tt.want)
		}
	}
}
