package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/diewo77/go-catalog/internal/validation"
)

var lookupTables = map[string]bool{
	"products": true, "categories": true, "brands": true,
	"users": true, "roles": true, "permissions": true,
}

// Lookup answers validation existence checks against the raw tables.
// Soft-deleted rows count: a deleted product still owns its SKU.
type Lookup struct {
	db *gorm.DB
}

var _ validation.Lookup = (*Lookup)(nil)

// NewLookup creates a lookup over db, usually a transaction.
func NewLookup(db *gorm.DB) *Lookup { return &Lookup{db: db} }

// Exists reports whether a row in table has column = value, ignoring the
// row whose id is ignoreID when non-zero.
func (l *Lookup) Exists(ctx context.Context, table, column string, value any, ignoreID uint) (bool, error) {
	if !lookupTables[table] {
		return false, fmt.Errorf("lookup: unknown table %q", table)
	}
	q := l.db.WithContext(ctx).Table(table).Where(fmt.Sprintf("%s = ?", column), value)
	if ignoreID != 0 {
		q = q.Where("id <> ?", ignoreID)
	}
	var n int64
	if err := q.Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
