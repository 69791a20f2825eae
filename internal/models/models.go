// Package models holds the GORM models of the catalog.
package models

// All lists every model in migration order.
func All() []any {
	return []any{
		&Permission{},
		&Role{},
		&User{},
		&Category{},
		&Brand{},
		&Product{},
		&AuditLog{},
	}
}
