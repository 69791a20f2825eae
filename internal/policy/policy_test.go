package policy_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-catalog/internal/auth"
	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/policy"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string, active bool, perms ...string) *models.User {
	t.Helper()
	role := models.Role{Name: "role-" + email}
	for _, p := range perms {
		perm := models.Permission{Name: p}
		if err := db.Where(models.Permission{Name: p}).FirstOrCreate(&perm).Error; err != nil {
			t.Fatal(err)
		}
		role.Permissions = append(role.Permissions, perm)
	}
	if err := db.Create(&role).Error; err != nil {
		t.Fatal(err)
	}
	u := models.User{Name: email, Email: email, Password: "x", Roles: []models.Role{role}}
	if active {
		now := time.Now()
		u.EmailVerifiedAt = &now
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return &u
}

func TestDBRoleResolver(t *testing.T) {
	db := openDB(t)
	editor := seedUser(t, db, "editor@example.com", true, "product:*", "brand:list")
	idle := seedUser(t, db, "idle@example.com", false, "*:*")
	r := policy.NewDBRoleResolver(db)
	ctx := context.Background()

	grants, err := r.Resolve(ctx, editor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !grants.Allows("product:delete") || !grants.Allows("brand:list") {
		t.Error("expected product:* and brand:list")
	}
	if grants.Allows("brand:delete") {
		t.Error("brand:delete must not be granted")
	}

	grants, err = r.Resolve(ctx, idle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !grants.Empty() {
		t.Error("inactive user must hold nothing")
	}

	grants, err = r.Resolve(ctx, 9999)
	if err != nil || !grants.Empty() {
		t.Errorf("missing user: grants=%v err=%v", grants.RoleNames(), err)
	}
}

func TestSelfProtectionPolicy(t *testing.T) {
	p := policy.NewSelfProtectionPolicy()
	ctx := context.Background()
	me := &models.User{ID: 5}

	if p.Can(ctx, 5, gate.ActionDelete, me) {
		t.Error("user must not delete themselves")
	}
	if !p.Can(ctx, 6, gate.ActionDelete, me) {
		t.Error("another user may delete")
	}
	if !p.Can(ctx, 5, gate.ActionUpdate, me) {
		t.Error("self update is allowed")
	}
	if !p.Can(ctx, 5, gate.ActionDelete, nil) {
		t.Error("nil resource is left to role permissions")
	}
}

func TestSystemRolePolicy_AdminBypass(t *testing.T) {
	ctx := context.Background()
	isAdmin := func(_ context.Context, uid uint) bool { return uid == 1 }
	p := policy.NewAdminBypassPolicy(policy.NewSystemRolePolicy(), isAdmin)
	system := &models.Role{Name: "admin", IsSystem: true}
	custom := &models.Role{Name: "editor"}

	if p.Can(ctx, 2, gate.ActionDelete, system) {
		t.Error("non-admin must not delete a system role")
	}
	if !p.Can(ctx, 2, gate.ActionView, system) {
		t.Error("viewing a system role is allowed")
	}
	if !p.Can(ctx, 2, gate.ActionDelete, custom) {
		t.Error("custom roles fall through")
	}
	if !p.Can(ctx, 1, gate.ActionUpdate, system) {
		t.Error("admin bypasses")
	}
}

func TestAuthGate_Middleware(t *testing.T) {
	db := openDB(t)
	admin := seedUser(t, db, "admin@example.com", true, "*:*")
	viewer := seedUser(t, db, "viewer@example.com", true, "product:list")
	ag := policy.NewAuthGate(db, time.Minute)
	policy.Register(ag)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	list := ag.RequirePermission("product", gate.ActionList)(ok)
	del := ag.RequirePermission("product", gate.ActionDelete)(ok)
	adminOnly := ag.RequireAdmin()(ok)

	tests := []struct {
		name    string
		handler http.Handler
		user    uint
		want    int
	}{
		{"anonymous list", list, 0, http.StatusUnauthorized},
		{"viewer list", list, viewer.ID, http.StatusOK},
		{"viewer delete", del, viewer.ID, http.StatusForbidden},
		{"admin delete", del, admin.ID, http.StatusOK},
		{"viewer admin area", adminOnly, viewer.ID, http.StatusForbidden},
		{"admin admin area", adminOnly, admin.ID, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != 0 {
				req = req.WithContext(auth.WithUserID(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthGate_AuthorizeSelfDelete(t *testing.T) {
	db := openDB(t)
	admin := seedUser(t, db, "root@example.com", true, "*:*")
	ag := policy.NewAuthGate(db, time.Minute)
	policy.Register(ag)
	ctx := auth.WithUserID(context.Background(), admin.ID)

	if err := ag.Authorize(ctx, gate.ActionDelete, "user", admin); err == nil {
		t.Error("admin must not delete their own account through the gate")
	}
	if err := ag.Authorize(ctx, gate.ActionDelete, "user", &models.User{ID: admin.ID + 1}); err != nil {
		t.Errorf("deleting another user: %v", err)
	}
}

func TestAuthGate_InvalidateUser(t *testing.T) {
	db := openDB(t)
	u := seedUser(t, db, "editor@example.com", true, "brand:list")
	ag := policy.NewAuthGate(db, time.Hour)
	ctx := auth.WithUserID(context.Background(), u.ID)

	if ag.CanRole(ctx, gate.ActionCreate, "brand") {
		t.Fatal("brand:create not granted yet")
	}
	perm := models.Permission{Name: "brand:create"}
	if err := db.Create(&perm).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Model(&u.Roles[0]).Association("Permissions").Append(&perm); err != nil {
		t.Fatal(err)
	}
	if ag.CanRole(ctx, gate.ActionCreate, "brand") {
		t.Error("grants should still be cached")
	}
	ag.InvalidateUser(u.ID)
	if !ag.CanRole(ctx, gate.ActionCreate, "brand") {
		t.Error("grants should be reloaded after invalidation")
	}
}
