package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/cache"
	"github.com/diewo77/go-catalog/internal/models"
)

// User status filter values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// UserQuery filters the user list.
type UserQuery struct {
	Paging
	Search string
	Role   string
	Status string
}

func (q UserQuery) filters() cache.Filters {
	return cache.Filters{"search": q.Search, "role": q.Role, "status": q.Status}
}

// UserStats summarizes accounts.
type UserStats struct {
	Total    int64            `json:"total"`
	Active   int64            `json:"active"`
	Inactive int64            `json:"inactive"`
	ByRole   map[string]int64 `json:"by_role"`
}

// Users reads users.
type Users struct {
	db    *gorm.DB
	cache *cache.Catalog
}

// NewUsers creates a user repository. c may be nil.
func NewUsers(db *gorm.DB, c *cache.Catalog) *Users {
	return &Users{db: db, cache: c}
}

// WithTx returns a repository bound to tx.
func (r *Users) WithTx(tx *gorm.DB) *Users {
	return &Users{db: tx, cache: r.cache}
}

// Find loads a user with roles.
func (r *Users) Find(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Preload("Roles").First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByEmail loads a user by lowercased email.
func (r *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Preload("Roles").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindMany loads the users among ids.
func (r *Users) FindMany(ctx context.Context, ids []uint) ([]models.User, error) {
	var out []models.User
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&out).Error
	return out, err
}

// Count returns the number of accounts.
func (r *Users) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

// Search returns a cached page of users with their roles.
func (r *Users) Search(ctx context.Context, q UserQuery) (Page[models.User], error) {
	q.Paging = q.Paging.normalize()
	return cache.Remember(ctx, r.cache, cache.Users, cache.KindList, q.filters(), q.Page, q.PerPage,
		func() (Page[models.User], error) {
			db := r.db.WithContext(ctx).Model(&models.User{})
			db = searchAny(db, q.Search, "users.name", "users.email")
			if q.Role != "" {
				db = db.Where(`EXISTS (SELECT 1 FROM user_roles JOIN roles ON roles.id = user_roles.role_id
					WHERE user_roles.user_id = users.id AND roles.name = ?)`, q.Role)
			}
			switch q.Status {
			case StatusActive:
				db = db.Where("users.email_verified_at IS NOT NULL")
			case StatusInactive:
				db = db.Where("users.email_verified_at IS NULL")
			}
			return paginate[models.User](db, "users", q.Paging, "", "Roles")
		})
}

// Stats returns cached account counters.
func (r *Users) Stats(ctx context.Context) (UserStats, error) {
	return cache.Remember(ctx, r.cache, cache.Users, cache.KindStats, nil, 0, 0, func() (UserStats, error) {
		st := UserStats{ByRole: map[string]int64{}}
		db := r.db.WithContext(ctx)
		if err := db.Model(&models.User{}).Count(&st.Total).Error; err != nil {
			return st, err
		}
		if err := db.Model(&models.User{}).Where("email_verified_at IS NOT NULL").Count(&st.Active).Error; err != nil {
			return st, err
		}
		st.Inactive = st.Total - st.Active

		var rows []struct {
			Name  string
			Count int64
		}
		err := db.Table("roles").
			Select("roles.name AS name, COUNT(user_roles.user_id) AS count").
			Joins("LEFT JOIN user_roles ON user_roles.role_id = roles.id").
			Group("roles.name").Scan(&rows).Error
		if err != nil {
			return st, err
		}
		for _, row := range rows {
			st.ByRole[row.Name] = row.Count
		}
		return st, nil
	})
}
