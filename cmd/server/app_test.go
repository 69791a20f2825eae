package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-catalog/internal/auth"
	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/db"
	"github.com/diewo77/go-catalog/internal/metrics"
	"github.com/diewo77/go-catalog/internal/policy"
	"github.com/diewo77/go-catalog/internal/services"
	"github.com/diewo77/go-catalog/internal/validation"
)

const adminPassword = "admin-pass-123"

type testServer struct {
	t     *testing.T
	app   *App
	users *services.UserService
	admin string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))
	require.NoError(t, db.Seed(conn, db.SeedOptions{AdminEmail: "admin@example.com", AdminPassword: adminPassword}))

	log := zaptest.NewLogger(t)
	m := metrics.New("test")
	ag := policy.NewAuthGate(conn, time.Minute)
	policy.Register(ag)
	opts := services.Options{
		Logger:       log,
		Cache:        cache.New(cache.NewMemory(0), cache.Options{Observer: m}),
		Metrics:      m,
		Grants:       ag.Resolver,
		PasswordCost: bcrypt.MinCost,
	}
	users := services.NewUserService(conn, opts)
	a := auth.New(auth.Config{SessionSecret: "test"}, func(ctx context.Context, uid uint) bool {
		u, err := users.GetUser(ctx, uid)
		return err == nil && u.IsActive()
	})
	ts := &testServer{
		t: t,
		app: NewApp(Deps{
			DB: conn, Log: log, Auth: a, Gate: ag, Metrics: m,
			Catalog: services.NewCatalogService(conn, opts),
			Users:   users,
			Roles:   services.NewRoleService(conn, opts),
		}),
		users: users,
	}
	ts.admin = ts.login("admin@example.com", adminPassword)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Error   json.RawMessage `json:"error"`
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.app.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (s *testServer) login(email, password string) string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, code, env.Message)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(s.t, out.Token)
	return out.Token
}

// viewer creates an active user holding the read-only "user" role.
func (s *testServer) viewer() string {
	s.t.Helper()
	_, err := s.users.CreateUser(context.Background(), 0, validation.Input{
		"name": "Viewer", "email": "viewer@example.com",
		"password": "viewer-pass", "password_confirmation": "viewer-pass",
		"is_active": true, "roles": []any{db.RoleUser},
	})
	require.NoError(s.t, err)
	return s.login("viewer@example.com", "viewer-pass")
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, env = s.do(http.MethodGet, "/api/me", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	me := decodeData[struct {
		Roles   []string `json:"roles"`
		IsAdmin bool     `json:"is_admin"`
	}](t, env)
	assert.Equal(t, []string{"admin"}, me.Roles)
	assert.True(t, me.IsAdmin)
}

func TestProductLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/api/categories", s.admin, map[string]any{"name": "Electronics"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	cat := decodeData[struct {
		ID uint `json:"id"`
	}](t, env)

	code, env = s.do(http.MethodPost, "/api/products", s.admin, map[string]any{
		"name": "Laptop", "price": 999.99, "stock": 5, "category_id": cat.ID,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	p := decodeData[struct {
		ID  uint   `json:"id"`
		SKU string `json:"sku"`
	}](t, env)
	assert.Regexp(t, `^ELE-LAP-\d{6}-[A-Z0-9]{3}$`, p.SKU)
	path := fmt.Sprintf("/api/products/%d", p.ID)

	code, env = s.do(http.MethodPatch, path+"/stock", s.admin, map[string]any{"quantity": 10, "operation": "subtract"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, 0, decodeData[struct {
		Stock int `json:"stock"`
	}](t, env).Stock)

	code, env = s.do(http.MethodPatch, path+"/stock", s.admin, map[string]any{"quantity": 3, "operation": "multiply"})
	assert.Equal(t, http.StatusBadRequest, code, env.Message)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/categories/%d", cat.ID), s.admin, nil)
	assert.Equal(t, http.StatusConflict, code, env.Message)

	code, _ = s.do(http.MethodDelete, path, s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, path, s.admin, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(http.MethodPost, path+"/restore", s.admin, nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(http.MethodGet, "/api/products?search=lap", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Meta["total"])
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/api/products", s.admin, map[string]any{"price": -1})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, env.Success)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(env.Error, &fields))
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "price")
	assert.Contains(t, fields, "category_id")
	assert.NotEmpty(t, env.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/brands", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+s.admin)
	rec := httptest.NewRecorder()
	s.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissions(t *testing.T) {
	s := newTestServer(t)
	viewer := s.viewer()

	code, _ := s.do(http.MethodGet, "/api/products", viewer, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/api/categories", viewer, map[string]any{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/users", viewer, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestUserRules(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodGet, "/api/me", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	me := decodeData[struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
	}](t, env)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", me.User.ID), s.admin, nil)
	assert.Equal(t, http.StatusForbidden, code, env.Message)
	assert.Equal(t, "This action is unauthorized.", env.Message)
	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/users/%d", me.User.ID), s.admin, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/users/%d/roles", me.User.ID), s.admin, map[string]any{"role": "ghost"})
	assert.Equal(t, http.StatusNotFound, code, env.Message)

	code, env = s.do(http.MethodPost, "/api/users/bulk", s.admin, map[string]any{"ids": []uint{me.User.ID}, "action": "delete"})
	assert.Equal(t, http.StatusForbidden, code, env.Message)
}

func TestDeleteOtherUser(t *testing.T) {
	s := newTestServer(t)
	viewer := s.viewer()
	code, env := s.do(http.MethodGet, "/api/me", viewer, nil)
	require.Equal(t, http.StatusOK, code)
	me := decodeData[struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
	}](t, env)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", me.User.ID), s.admin, nil)
	assert.Equal(t, http.StatusOK, code, env.Message)
	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", me.User.ID), s.admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPermissionCatalogIsAdminOnly(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/api/roles", s.admin, map[string]any{
		"name": "perm-editor", "permissions": []string{"permission:*"},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	_, err := s.users.CreateUser(context.Background(), 0, validation.Input{
		"name": "Editor", "email": "editor@example.com",
		"password": "editor-pass", "password_confirmation": "editor-pass",
		"is_active": true, "roles": []any{"perm-editor"},
	})
	require.NoError(t, err)
	editor := s.login("editor@example.com", "editor-pass")

	code, _ = s.do(http.MethodGet, "/api/permissions", editor, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = s.do(http.MethodPost, "/api/permissions", editor, map[string]any{"name": "report:export"})
	assert.Equal(t, http.StatusForbidden, code, env.Message)

	code, env = s.do(http.MethodPost, "/api/permissions", s.admin, map[string]any{"name": "report:export"})
	assert.Equal(t, http.StatusCreated, code, env.Message)
}

func TestSystemRoles(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodGet, "/api/roles?search=admin", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	roles := decodeData[[]struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}](t, env)
	require.NotEmpty(t, roles)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d", roles[0].ID), s.admin, nil)
	assert.Equal(t, http.StatusConflict, code, env.Message)

	code, env = s.do(http.MethodPost, "/api/roles", s.admin, map[string]any{
		"name": "auditor", "permissions": []string{"product:list", "product:view"},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	auditor := decodeData[struct {
		ID uint `json:"id"`
	}](t, env)
	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d", auditor.ID), s.admin, nil)
	assert.Equal(t, http.StatusOK, code, env.Message)
}
