package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-catalog/internal/events"
	"github.com/diewo77/go-catalog/internal/models"
	"github.com/diewo77/go-catalog/internal/validation"
)

var may1 = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type env struct {
	db      *gorm.DB
	events  *events.Recorder
	grants  *grantsSpy
	catalog *CatalogService
	users   *UserService
	roles   *RoleService
}

func newEnv(t *testing.T, tweak ...func(*Options)) *env {
	t.Helper()
	e := &env{db: newTestDB(t), events: &events.Recorder{}, grants: &grantsSpy{}}
	opts := Options{
		Logger:       zaptest.NewLogger(t),
		Events:       e.events,
		Grants:       e.grants,
		Now:          func() time.Time { return may1 },
		PasswordCost: bcrypt.MinCost,
	}
	for _, f := range tweak {
		f(&opts)
	}
	e.catalog = NewCatalogService(e.db, opts)
	e.users = NewUserService(e.db, opts)
	e.roles = NewRoleService(e.db, opts)
	return e
}

func (e *env) category(t *testing.T, name string) *models.Category {
	t.Helper()
	c, err := e.catalog.CreateCategory(context.Background(), 0, validation.Input{"name": name})
	require.NoError(t, err)
	return c
}

func (e *env) brand(t *testing.T, name string) *models.Brand {
	t.Helper()
	b, err := e.catalog.CreateBrand(context.Background(), 0, validation.Input{"name": name})
	require.NoError(t, err)
	return b
}

func (e *env) product(t *testing.T, categoryID uint, name string, stock int) *models.Product {
	t.Helper()
	p, err := e.catalog.CreateProduct(context.Background(), 0, validation.Input{
		"name":        name,
		"price":       19.99,
		"stock":       stock,
		"category_id": categoryID,
	})
	require.NoError(t, err)
	return p
}

func (e *env) role(t *testing.T, name string, perms ...string) *models.Role {
	t.Helper()
	for _, p := range perms {
		require.NoError(t, e.db.FirstOrCreate(&models.Permission{}, models.Permission{Name: p}).Error)
	}
	list := make([]any, len(perms))
	for i, p := range perms {
		list[i] = p
	}
	r, err := e.roles.CreateRole(context.Background(), 0, validation.Input{"name": name, "permissions": list})
	require.NoError(t, err)
	return r
}

func (e *env) user(t *testing.T, name string, roles ...string) *models.User {
	t.Helper()
	list := make([]any, len(roles))
	for i, r := range roles {
		list[i] = r
	}
	u, err := e.users.CreateUser(context.Background(), 0, validation.Input{
		"name":                  name,
		"email":                 strings.ToLower(name) + "@example.com",
		"password":              "secret-pass",
		"password_confirmation": "secret-pass",
		"is_active":             true,
		"roles":                 list,
	})
	require.NoError(t, err)
	return u
}

func (e *env) auditCount(t *testing.T, entity string, id uint, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).
		Where("entity_type = ? AND entity_id = ? AND action = ?", entity, id, action).Count(&n).Error)
	return n
}

// grantsSpy records permission cache invalidations.
type grantsSpy struct {
	mu    sync.Mutex
	users []uint
	all   int
}

func (g *grantsSpy) Invalidate(user uint) {
	g.mu.Lock()
	g.users = append(g.users, user)
	g.mu.Unlock()
}

func (g *grantsSpy) InvalidateAll() {
	g.mu.Lock()
	g.all++
	g.mu.Unlock()
}

// zeroReader makes every random draw pick the first alphabet symbol.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
