package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/models"
)

// Role names created by Seed.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

var seedResources = []struct {
	Resource string
	Label    string
	Actions  []gate.Action
}{
	{"product", "products", []gate.Action{gate.ActionList, gate.ActionView, gate.ActionCreate, gate.ActionUpdate, gate.ActionDelete, gate.ActionRestore, gate.ActionStock}},
	{"category", "categories", []gate.Action{gate.ActionList, gate.ActionView, gate.ActionCreate, gate.ActionUpdate, gate.ActionDelete}},
	{"brand", "brands", []gate.Action{gate.ActionList, gate.ActionView, gate.ActionCreate, gate.ActionUpdate, gate.ActionDelete}},
	{"user", "users", []gate.Action{gate.ActionList, gate.ActionView, gate.ActionCreate, gate.ActionUpdate, gate.ActionDelete}},
	{"role", "roles", []gate.Action{gate.ActionList, gate.ActionView, gate.ActionCreate, gate.ActionUpdate, gate.ActionDelete}},
	{"permission", "permissions", []gate.Action{gate.ActionList, gate.ActionView, gate.ActionCreate, gate.ActionUpdate, gate.ActionDelete}},
}

var seedRoles = []struct {
	Name        string
	Description string
	IsSystem    bool
	Permissions []string
}{
	{
		Name:        RoleAdmin,
		Description: "Full system administrator with all permissions",
		IsSystem:    true,
		Permissions: []string{string(gate.PermissionSuperAdmin)},
	},
	{
		Name:        RoleManager,
		Description: "Manages the catalog and can look up users",
		IsSystem:    true,
		Permissions: []string{"product:*", "category:*", "brand:*", "user:list", "user:view"},
	},
	{
		Name:        RoleUser,
		Description: "Read-only access to the catalog",
		IsSystem:    true,
		Permissions: []string{
			"product:list", "product:view",
			"category:list", "category:view",
			"brand:list", "brand:view",
		},
	},
}

// SeedOptions configures the bootstrap administrator. Both fields empty
// skips it.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
}

// Seed creates the permission set, the default roles and, when configured,
// an active administrator. Running it twice changes nothing.
func Seed(db *gorm.DB, opts SeedOptions) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := SeedPermissions(tx); err != nil {
			return err
		}
		if err := SeedRoles(tx); err != nil {
			return err
		}
		return seedAdmin(tx, opts)
	})
}

// SeedPermissions creates "*:*", "<resource>:*" and every
// "<resource>:<action>" pair.
func SeedPermissions(db *gorm.DB) error {
	ensure := func(name, desc string) error {
		perm := models.Permission{Name: name, Description: desc}
		return db.Where("name = ?", name).FirstOrCreate(&perm).Error
	}
	if err := ensure(string(gate.PermissionSuperAdmin), "Full system access"); err != nil {
		return err
	}
	for _, r := range seedResources {
		if err := ensure(string(gate.NewPermission(r.Resource, gate.WildcardAll)), "All "+r.Label+" actions"); err != nil {
			return err
		}
		for _, a := range r.Actions {
			desc := strings.ToUpper(string(a[:1])) + string(a[1:]) + " " + r.Label
			if err := ensure(string(gate.NewPermission(r.Resource, a)), desc); err != nil {
				return err
			}
		}
	}
	return nil
}

// SeedRoles creates the default roles and resets their permissions.
func SeedRoles(db *gorm.DB) error {
	for _, r := range seedRoles {
		role := models.Role{Name: r.Name}
		if err := db.Where("name = ?", r.Name).
			Attrs(models.Role{Description: r.Description, IsSystem: r.IsSystem}).
			FirstOrCreate(&role).Error; err != nil {
			return err
		}
		var perms []models.Permission
		if err := db.Where("name IN ?", r.Permissions).Find(&perms).Error; err != nil {
			return err
		}
		if len(perms) != len(r.Permissions) {
			return fmt.Errorf("seed role %s: expected %d permissions, found %d", r.Name, len(r.Permissions), len(perms))
		}
		if err := db.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return err
		}
	}
	return nil
}

func seedAdmin(db *gorm.DB, opts SeedOptions) error {
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" && opts.AdminPassword == "" {
		return nil
	}
	if email == "" || len(opts.AdminPassword) < 8 {
		return errors.New("seed admin: email and a password of at least 8 characters are required")
	}

	var admin models.Role
	if err := db.Where("name = ?", RoleAdmin).First(&admin).Error; err != nil {
		return err
	}

	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, herr := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
		if herr != nil {
			return herr
		}
		now := time.Now()
		user = models.User{Name: "Administrator", Email: email, Password: string(hash), EmailVerifiedAt: &now}
		if err := db.Create(&user).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return db.Model(&user).Association("Roles").Append(&admin)
}
