package main

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/auth"
	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/handlers"
	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/metrics"
	"github.com/diewo77/go-catalog/internal/middleware"
	"github.com/diewo77/go-catalog/internal/policy"
	"github.com/diewo77/go-catalog/internal/services"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	DB      *gorm.DB
	Log     *zap.Logger
	Auth    *auth.Auth
	Gate    *policy.AuthGate
	Metrics *metrics.Metrics
	Catalog *services.CatalogService
	Users   *services.UserService
	Roles   *services.RoleService
}

// App is the main application handler that sets up all routes.
type App struct {
	mux     *http.ServeMux
	deps    Deps
	handler http.Handler
}

// NewApp creates a new application with all routes configured.
func NewApp(d Deps) *App {
	app := &App{mux: http.NewServeMux(), deps: d}
	app.setupRoutes()

	var h http.Handler = app.mux
	if d.Metrics != nil {
		h = d.Metrics.Middleware(h)
	}
	h = d.Auth.Middleware(h)
	h = middleware.Recover(h)
	h = middleware.Logging(h)
	app.handler = middleware.RequestID(d.Log)(h)
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *App) setupRoutes() {
	d := a.deps

	a.mux.HandleFunc("GET /healthz", a.healthz)
	if d.Metrics != nil {
		a.mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	ah := handlers.NewAuthHandler(d.Users, d.Auth, d.Gate.Gate)
	a.mux.HandleFunc("POST /api/login", ah.Login)
	a.mux.HandleFunc("POST /api/logout", ah.Logout)
	a.mux.Handle("GET /api/me", d.Auth.RequireAuth(http.HandlerFunc(ah.Me)))

	ph := handlers.NewProductHandler(d.Catalog)
	a.route("GET /api/products", "product", gate.ActionList, ph.List)
	a.route("GET /api/products/stats", "product", gate.ActionList, ph.Stats)
	a.route("GET /api/products/low-stock", "product", gate.ActionList, ph.LowStock)
	a.route("POST /api/products", "product", gate.ActionCreate, ph.Create)
	a.route("POST /api/products/bulk", "product", gate.ActionUpdate, ph.Bulk, gate.ActionDelete)
	a.route("GET /api/products/{id}", "product", gate.ActionView, ph.Show)
	a.route("PUT /api/products/{id}", "product", gate.ActionUpdate, ph.Update)
	a.route("DELETE /api/products/{id}", "product", gate.ActionDelete, ph.Delete)
	a.route("PATCH /api/products/{id}/toggle", "product", gate.ActionUpdate, ph.Toggle)
	a.route("PATCH /api/products/{id}/stock", "product", gate.ActionStock, ph.Stock)
	a.route("POST /api/products/{id}/restore", "product", gate.ActionRestore, ph.Restore)

	ch := handlers.NewCategoryHandler(d.Catalog)
	a.route("GET /api/categories", "category", gate.ActionList, ch.List)
	a.route("GET /api/categories/stats", "category", gate.ActionList, ch.Stats)
	a.route("POST /api/categories", "category", gate.ActionCreate, ch.Create)
	a.route("POST /api/categories/bulk", "category", gate.ActionUpdate, ch.Bulk, gate.ActionDelete)
	a.route("GET /api/categories/{id}", "category", gate.ActionView, ch.Show)
	a.route("PUT /api/categories/{id}", "category", gate.ActionUpdate, ch.Update)
	a.route("DELETE /api/categories/{id}", "category", gate.ActionDelete, ch.Delete)
	a.route("PATCH /api/categories/{id}/toggle", "category", gate.ActionUpdate, ch.Toggle)

	bh := handlers.NewBrandHandler(d.Catalog)
	a.route("GET /api/brands", "brand", gate.ActionList, bh.List)
	a.route("GET /api/brands/stats", "brand", gate.ActionList, bh.Stats)
	a.route("POST /api/brands", "brand", gate.ActionCreate, bh.Create)
	a.route("POST /api/brands/bulk", "brand", gate.ActionUpdate, bh.Bulk, gate.ActionDelete)
	a.route("GET /api/brands/{id}", "brand", gate.ActionView, bh.Show)
	a.route("PUT /api/brands/{id}", "brand", gate.ActionUpdate, bh.Update)
	a.route("DELETE /api/brands/{id}", "brand", gate.ActionDelete, bh.Delete)
	a.route("PATCH /api/brands/{id}/toggle", "brand", gate.ActionUpdate, bh.Toggle)

	uh := handlers.NewUserHandler(d.Users, d.Gate)
	a.route("GET /api/users", "user", gate.ActionList, uh.List)
	a.route("GET /api/users/stats", "user", gate.ActionList, uh.Stats)
	a.route("POST /api/users", "user", gate.ActionCreate, uh.Create)
	a.route("POST /api/users/bulk", "user", gate.ActionUpdate, uh.Bulk, gate.ActionDelete)
	a.route("GET /api/users/{id}", "user", gate.ActionView, uh.Show)
	a.route("PUT /api/users/{id}", "user", gate.ActionUpdate, uh.Update)
	a.route("DELETE /api/users/{id}", "user", gate.ActionDelete, uh.Delete)
	a.route("PATCH /api/users/{id}/toggle", "user", gate.ActionUpdate, uh.Toggle)
	a.route("POST /api/users/{id}/reset-password", "user", gate.ActionUpdate, uh.ResetPassword)
	a.route("POST /api/users/{id}/roles", "user", gate.ActionUpdate, uh.AssignRole)
	a.route("DELETE /api/users/{id}/roles/{role}", "user", gate.ActionUpdate, uh.RemoveRole)

	rh := handlers.NewRoleHandler(d.Roles, d.Gate)
	a.route("GET /api/roles", "role", gate.ActionList, rh.List)
	a.route("POST /api/roles", "role", gate.ActionCreate, rh.Create)
	a.route("GET /api/roles/{id}", "role", gate.ActionView, rh.Show)
	a.route("PUT /api/roles/{id}", "role", gate.ActionUpdate, rh.Update)
	a.route("DELETE /api/roles/{id}", "role", gate.ActionDelete, rh.Delete)
	a.route("GET /api/permissions", "permission", gate.ActionList, rh.ListPermissions)
	a.route("POST /api/permissions", "permission", gate.ActionCreate, a.adminOnly(rh.CreatePermission))
	a.route("PUT /api/permissions/{id}", "permission", gate.ActionUpdate, a.adminOnly(rh.UpdatePermission))
	a.route("DELETE /api/permissions/{id}", "permission", gate.ActionDelete, a.adminOnly(rh.DeletePermission))
}

// adminOnly limits h to "*:*" holders, whatever permission grants the
// caller's roles carry.
func (a *App) adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return a.deps.Gate.RequireAdmin()(h).ServeHTTP
}

// route registers h behind authentication and resource:action (plus any
// extra actions, all required).
func (a *App) route(pattern, resource string, action gate.Action, h http.HandlerFunc, extra ...gate.Action) {
	var next http.Handler = h
	for _, act := range append([]gate.Action{action}, extra...) {
		next = a.deps.Gate.RequirePermission(resource, act)(next)
	}
	a.mux.Handle(pattern, a.deps.Auth.RequireAuth(next))
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.DB.WithContext(r.Context()).Exec("SELECT 1").Error; err != nil {
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
