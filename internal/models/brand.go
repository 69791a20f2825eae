package models

import "time"

// Brand is an optional manufacturer reference on products.
type Brand struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Name            string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	CountryOfOrigin string    `gorm:"size:100" json:"country_of_origin,omitempty"`
	FoundedYear     *int      `json:"founded_year,omitempty"`
	Website         string    `gorm:"size:255" json:"website,omitempty"`
	Description     string    `gorm:"type:text" json:"description,omitempty"`
	IsActive        bool      `gorm:"not null" json:"is_active"`
	ProductsCount   int64     `gorm:"->;-:migration" json:"products_count"`
}
