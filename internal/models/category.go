package models

import "time"

// Category groups products. Categories are hard-deleted.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Description string    `gorm:"size:1000" json:"description,omitempty"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	// ProductsCount is filled by list queries only.
	ProductsCount int64 `gorm:"->;-:migration" json:"products_count"`
}
