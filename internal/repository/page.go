// Package repository holds the read side of the catalog: filtered, paginated
// and cached queries plus the lookups used by validation. It has no
// business-rule authority.
package repository

import (
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// Page is one page of a list query.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"current_page"`
	PerPage  int   `json:"per_page"`
	LastPage int   `json:"last_page"`
}

// Meta is the pagination block of the API envelope.
func (p Page[T]) Meta() map[string]any {
	return map[string]any{
		"current_page": p.Page,
		"per_page":     p.PerPage,
		"total":        p.Total,
		"last_page":    p.LastPage,
	}
}

// Paging is embedded in every list query.
type Paging struct {
	Page    int
	PerPage int
}

// normalize clamps page to >= 1 and per_page to 1..MaxPerPage.
func (p Paging) normalize() Paging {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// paginate counts base, then loads one page ordered by name and id.
// selectExpr, when set, replaces the column list of the item query only.
func paginate[T any](base *gorm.DB, table string, p Paging, selectExpr string, preload ...string) (Page[T], error) {
	p = p.normalize()
	base = base.Session(&gorm.Session{})

	out := Page[T]{Page: p.Page, PerPage: p.PerPage, Items: []T{}}
	if err := base.Count(&out.Total).Error; err != nil {
		return out, err
	}
	out.LastPage = int((out.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
	if out.LastPage < 1 {
		out.LastPage = 1
	}

	q := base
	if selectExpr != "" {
		q = q.Select(selectExpr)
	}
	for _, rel := range preload {
		q = q.Preload(rel)
	}
	err := q.Order(table + ".name ASC").Order(table + ".id ASC").
		Limit(p.PerPage).Offset((p.Page - 1) * p.PerPage).
		Find(&out.Items).Error
	return out, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeTerm lowercases and escapes a user search term for LIKE.
func likeTerm(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// searchAny ORs a case-insensitive substring match over columns.
func searchAny(db *gorm.DB, term string, columns ...string) *gorm.DB {
	if strings.TrimSpace(term) == "" {
		return db
	}
	like := likeTerm(term)
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		parts[i] = "LOWER(COALESCE(" + c + ", '')) LIKE ? ESCAPE '\\'"
		args[i] = like
	}
	return db.Where("("+strings.Join(parts, " OR ")+")", args...)
}
