package services

import (
	"github.com/diewo77/go-catalog/internal/gate"
	v "github.com/diewo77/go-catalog/internal/validation"
)

var productSchema = v.Schema{
	v.F("name", v.Required(), v.String(), v.Max(255)),
	v.F("description", v.Nullable(), v.String(), v.Max(5000)),
	v.F("price", v.Required(), v.Numeric(), v.Min(0)),
	v.F("cost_price", v.Nullable(), v.Numeric(), v.Min(0)),
	v.F("sale_price", v.Nullable(), v.Numeric(), v.Min(0), v.LTEField("price")),
	v.F("stock", v.Default(0), v.Integer(), v.Min(0)),
	v.F("min_stock", v.Default(0), v.Integer(), v.Min(0)),
	v.F("max_stock", v.Nullable(), v.Integer(), v.Min(0), v.GTEField("min_stock")),
	v.F("sku", v.Nullable(), v.String(), v.Max(100), v.Unique("products", "sku")),
	v.F("barcode", v.Nullable(), v.String(), v.Max(100), v.Unique("products", "barcode")),
	v.F("category_id", v.Required(), v.Integer(), v.Exists("categories", "id")),
	v.F("brand_id", v.Nullable(), v.Integer(), v.Exists("brands", "id")),
	v.F("is_active", v.Default(true), v.Boolean()),
	v.F("weight", v.Nullable(), v.Numeric(), v.Min(0)),
	v.F("height", v.Nullable(), v.Numeric(), v.Min(0)),
	v.F("width", v.Nullable(), v.Numeric(), v.Min(0)),
	v.F("length", v.Nullable(), v.Numeric(), v.Min(0)),
	v.F("specifications", v.Nullable(), v.Map()),
	v.F("images", v.Nullable(), v.Array(), v.Each(v.String(), v.Max(500))),
	v.F("generate_barcode", v.Default(false), v.Boolean()),
}

var bulkProductSchema = productSchema.Only("is_active", "category_id", "brand_id", "min_stock", "max_stock")

var categorySchema = v.Schema{
	v.F("name", v.Required(), v.String(), v.Max(255), v.Unique("categories", "name")),
	v.F("description", v.Nullable(), v.String(), v.Max(1000)),
	v.F("is_active", v.Default(true), v.Boolean()),
}

// brandSchema bounds founded_year by the current year.
func brandSchema(year int) v.Schema {
	return v.Schema{
		v.F("name", v.Required(), v.String(), v.Max(255), v.Unique("brands", "name")),
		v.F("country_of_origin", v.Nullable(), v.String(), v.Max(100)),
		v.F("founded_year", v.Nullable(), v.Integer(), v.Between(1800, float64(year+1))),
		v.F("website", v.Nullable(), v.String(), v.URL(), v.Max(255)),
		v.F("description", v.Nullable(), v.String(), v.Max(5000)),
		v.F("is_active", v.Default(true), v.Boolean()),
	}
}

var activeSchema = v.Schema{
	v.F("is_active", v.Required(), v.Boolean()),
}

var createUserSchema = v.Schema{
	v.F("name", v.Required(), v.String(), v.Max(255)),
	v.F("email", v.Required(), v.String(), v.Email(), v.Max(255), v.Unique("users", "email")),
	v.F("password", v.Required(), v.String(), v.Min(8), v.Confirmed()),
	v.F("is_active", v.Nullable(), v.Boolean()),
	v.F("roles", v.Nullable(), v.Array(), v.Each(v.String())),
}

// updateUserSchema checks the password only when one is supplied.
var updateUserSchema = v.Schema{
	v.F("name", v.Required(), v.String(), v.Max(255)),
	v.F("email", v.Required(), v.String(), v.Email(), v.Max(255), v.Unique("users", "email")),
	v.F("password", v.Nullable(), v.String(), v.Min(8), v.Confirmed()),
	v.F("is_active", v.Nullable(), v.Boolean()),
	v.F("roles", v.Nullable(), v.Array(), v.Each(v.String())),
}

var roleSchema = v.Schema{
	v.F("name", v.Required(), v.String(), v.Max(100), v.Unique("roles", "name")),
	v.F("description", v.Nullable(), v.String(), v.Max(500)),
	v.F("permissions", v.Nullable(), v.Array(), v.Each(v.String(), permissionName())),
}

var permissionSchema = v.Schema{
	v.F("name", v.Required(), v.String(), v.Max(150), permissionName(), v.Unique("permissions", "name")),
	v.F("description", v.Nullable(), v.String(), v.Max(200)),
}

// permissionName requires the "resource:action" format.
func permissionName() v.Rule {
	return v.RuleFunc(func(c *v.Context, value any) (any, error) {
		s, _ := value.(string)
		if !gate.Permission(s).Valid() {
			return nil, c.Fail("The %s must use the resource:action format.", c.Label())
		}
		return s, nil
	})
}
