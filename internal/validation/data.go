package validation

import "fmt"

// Data holds normalized, validated values keyed by field name.
// A key present with a nil value means the caller explicitly cleared it.
type Data map[string]any

// Has reports whether the field was supplied (possibly as null).
func (d Data) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// IsNull reports whether the field was supplied as null.
func (d Data) IsNull(key string) bool {
	v, ok := d[key]
	return ok && v == nil
}

func (d Data) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// StringPtr returns nil for absent or null fields.
func (d Data) StringPtr(key string) *string {
	if d[key] == nil {
		return nil
	}
	s := d.String(key)
	return &s
}

func (d Data) Int(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// IntPtr returns nil for absent or null fields.
func (d Data) IntPtr(key string) *int {
	if d[key] == nil {
		return nil
	}
	n := d.Int(key)
	return &n
}

func (d Data) Uint(key string) uint {
	if n := d.Int(key); n > 0 {
		return uint(n)
	}
	return 0
}

// UintPtr returns nil for absent, null or non-positive fields.
func (d Data) UintPtr(key string) *uint {
	n := d.Uint(key)
	if n == 0 {
		return nil
	}
	return &n
}

func (d Data) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// FloatPtr returns nil for absent or null fields.
func (d Data) FloatPtr(key string) *float64 {
	if d[key] == nil {
		return nil
	}
	f := d.Float(key)
	return &f
}

func (d Data) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Strings returns a list field as strings.
func (d Data) Strings(key string) []string {
	items, _ := d[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, fmt.Sprint(it))
	}
	return out
}

// Map returns an object field.
func (d Data) Map(key string) map[string]any {
	m, _ := d[key].(map[string]any)
	return m
}
