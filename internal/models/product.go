package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Product is a sellable catalog item. Products are soft-deleted.
type Product struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	DeletedAt   gorm.DeletedAt      `gorm:"index" json:"deleted_at,omitempty"`
	Name        string              `gorm:"size:255;not null;index" json:"name"`
	Description string              `gorm:"type:text" json:"description,omitempty"`
	Price       decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"price"`
	CostPrice   decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"cost_price"`
	SalePrice   decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"sale_price"`
	Stock       int                 `gorm:"not null;default:0" json:"stock"`
	MinStock    int                 `gorm:"not null;default:0" json:"min_stock"`
	MaxStock    *int                `json:"max_stock"`
	SKU         string              `gorm:"column:sku;size:100;uniqueIndex;not null" json:"sku"`
	Barcode     *string             `gorm:"size:100;uniqueIndex" json:"barcode"`
	// IsActive carries no column default: a false value must be written as-is.
	IsActive bool `gorm:"not null" json:"is_active"`

	CategoryID uint      `gorm:"not null;index" json:"category_id"`
	Category   *Category `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"category,omitempty"`
	BrandID    *uint     `gorm:"index" json:"brand_id"`
	Brand      *Brand    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"brand,omitempty"`

	Dimensions     Dimensions                  `gorm:"embedded" json:"dimensions"`
	Specifications datatypes.JSONMap           `json:"specifications,omitempty"`
	Images         datatypes.JSONSlice[string] `json:"images,omitempty"`
}

// Dimensions groups the optional physical measurements of a product.
type Dimensions struct {
	Weight *float64 `json:"weight,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Length *float64 `json:"length,omitempty"`
}

// Stock status labels.
const (
	StockIn  = "in_stock"
	StockLow = "low_stock"
	StockOut = "out_of_stock"
)

// IsOutOfStock reports whether no units are left.
func (p *Product) IsOutOfStock() bool { return p.Stock <= 0 }

// IsLowStock reports whether stock is positive but at or under min_stock.
func (p *Product) IsLowStock() bool { return p.Stock > 0 && p.Stock <= p.MinStock }

// StockStatus returns one of StockIn, StockLow or StockOut.
func (p *Product) StockStatus() string {
	switch {
	case p.IsOutOfStock():
		return StockOut
	case p.IsLowStock():
		return StockLow
	default:
		return StockIn
	}
}

// Margin returns price minus cost price, or zero when the cost is unknown.
func (p *Product) Margin() decimal.Decimal {
	if !p.CostPrice.Valid {
		return decimal.Zero
	}
	return p.Price.Sub(p.CostPrice.Decimal)
}

// EffectivePrice is the sale price when set, the list price otherwise.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.Price
}
