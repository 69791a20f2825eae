package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Context is handed to each rule while a field is evaluated.
type Context struct {
	context.Context
	Field string
	Input Input
	opts  Options
}

// Fail reports a constraint violation for the current field.
func (c *Context) Fail(format string, args ...any) error {
	return &violation{msg: fmt.Sprintf(format, args...)}
}

// Label is the human-readable field name used in messages.
func (c *Context) Label() string { return label(c.Field) }

type violation struct {
	key string
	msg string
}

func (v *violation) Error() string { return v.msg }

func (v *violation) field(def string) string {
	if v.key != "" {
		return v.key
	}
	return def
}

// Rule is one constraint. Apply returns the (possibly normalized) value, a
// violation created through Context.Fail, or an infrastructure error.
type Rule interface {
	Apply(c *Context, value any) (any, error)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(c *Context, value any) (any, error)

func (f RuleFunc) Apply(c *Context, value any) (any, error) { return f(c, value) }

type marker int

const (
	markRequired marker = iota
	markNullable
	markSometimes
)

func (marker) Apply(_ *Context, v any) (any, error) { return v, nil }

// Required rejects absent, null and blank values.
func Required() Rule { return markRequired }

// Nullable accepts an explicit null and stores it as nil.
func Nullable() Rule { return markNullable }

// Sometimes only validates the field when it is present in the input.
func Sometimes() Rule { return markSometimes }

type defaultRule struct{ value any }

func (defaultRule) Apply(_ *Context, v any) (any, error) { return v, nil }

// Default supplies value when the field is absent.
func Default(value any) Rule { return defaultRule{value: value} }

type ruleFlags struct {
	required, sometimes, hasDefault bool
	def                             any
}

func flagsOf(rules []Rule) ruleFlags {
	var f ruleFlags
	for _, r := range rules {
		switch t := r.(type) {
		case marker:
			if t == markRequired {
				f.required = true
			}
			if t == markSometimes {
				f.sometimes = true
			}
		case defaultRule:
			f.hasDefault = true
			f.def = t.value
		}
	}
	return f
}

// String requires a string and trims surrounding whitespace.
func String() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, c.Fail("The %s field must be a string.", c.Label())
		}
		return strings.TrimSpace(s), nil
	})
}

// Integer accepts whole numbers (JSON numbers or numeric strings) as int.
func Integer() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return nil, c.Fail("The %s field must be an integer.", c.Label())
		}
		return int(f), nil
	})
}

// Numeric accepts any number (JSON numbers or numeric strings) as float64.
func Numeric() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		f, ok := toFloat(v)
		if !ok {
			return nil, c.Fail("The %s field must be a number.", c.Label())
		}
		return f, nil
	})
}

// Boolean accepts true/false, 1/0 and their string forms.
func Boolean() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		switch t := v.(type) {
		case bool:
			return t, nil
		case float64:
			if t == 0 || t == 1 {
				return t == 1, nil
			}
		case int:
			if t == 0 || t == 1 {
				return t == 1, nil
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "1", "true", "on", "yes":
				return true, nil
			case "0", "false", "off", "no":
				return false, nil
			}
		}
		return nil, c.Fail("The %s field must be true or false.", c.Label())
	})
}

// Array requires a list and normalizes it to []any.
func Array() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		switch t := v.(type) {
		case []any:
			return t, nil
		case []string:
			out := make([]any, len(t))
			for i, s := range t {
				out[i] = s
			}
			return out, nil
		case []int:
			out := make([]any, len(t))
			for i, n := range t {
				out[i] = n
			}
			return out, nil
		}
		return nil, c.Fail("The %s field must be an array.", c.Label())
	})
}

// Map requires a JSON object.
func Map() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		switch t := v.(type) {
		case map[string]any:
			return t, nil
		case map[string]string:
			out := make(map[string]any, len(t))
			for k, s := range t {
				out[k] = s
			}
			return out, nil
		}
		return nil, c.Fail("The %s field must be an object.", c.Label())
	})
}

// Email requires a bare, well-formed address and lowercases it.
func Email() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		s, _ := v.(string)
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || !strings.Contains(s, "@") {
			return nil, c.Fail("The %s field must be a valid email address.", c.Label())
		}
		return strings.ToLower(s), nil
	})
}

// URL requires an absolute http(s) URL.
func URL() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		s, _ := v.(string)
		u, err := url.ParseRequestURI(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, c.Fail("The %s field must be a valid URL.", c.Label())
		}
		return s, nil
	})
}

// Min bounds numbers by value, strings by length and arrays by size.
func Min(n float64) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		size, unit := measure(v)
		if size < n {
			return nil, c.Fail("The %s field must be at least %s%s.", c.Label(), fmtNum(n), unit)
		}
		return v, nil
	})
}

// Max bounds numbers by value, strings by length and arrays by size.
func Max(n float64) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		size, unit := measure(v)
		if size > n {
			return nil, c.Fail("The %s field must not be greater than %s%s.", c.Label(), fmtNum(n), unit)
		}
		return v, nil
	})
}

// Between bounds a number inclusively.
func Between(lo, hi float64) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		size, _ := measure(v)
		if size < lo || size > hi {
			return nil, c.Fail("The %s field must be between %s and %s.", c.Label(), fmtNum(lo), fmtNum(hi))
		}
		return v, nil
	})
}

// In restricts a string to a fixed set of values.
func In(values ...string) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		s := fmt.Sprint(v)
		for _, allowed := range values {
			if s == allowed {
				return v, nil
			}
		}
		return nil, c.Fail("The selected %s is invalid.", c.Label())
	})
}

// Confirmed requires a matching "<field>_confirmation" input.
func Confirmed() Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		if other, ok := c.Input[c.Field+"_confirmation"]; !ok || fmt.Sprint(other) != fmt.Sprint(v) {
			return nil, c.Fail("The %s field confirmation does not match.", c.Label())
		}
		return v, nil
	})
}

// GTEField requires a number >= the sibling field, when that field is set.
func GTEField(other string) Rule {
	return compareField(other, func(a, b float64) bool { return a >= b }, "greater than or equal to")
}

// LTEField requires a number <= the sibling field, when that field is set.
func LTEField(other string) Rule {
	return compareField(other, func(a, b float64) bool { return a <= b }, "less than or equal to")
}

func compareField(other string, ok func(a, b float64) bool, phrase string) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		a, aok := toFloat(v)
		b, bok := toFloat(c.Input[other])
		if aok && bok && !ok(a, b) {
			return nil, c.Fail("The %s field must be %s %s.", c.Label(), phrase, label(other))
		}
		return v, nil
	})
}

// Unique rejects values already stored in table.column, ignoring the row
// named by Options.IgnoreID.
func Unique(table, column string) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		if c.opts.Lookup == nil {
			return v, nil
		}
		taken, err := c.opts.Lookup.Exists(c, table, column, v, c.opts.IgnoreID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, c.Fail("The %s has already been taken.", c.Label())
		}
		return v, nil
	})
}

// Exists requires the value to reference a stored table.column.
func Exists(table, column string) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		if c.opts.Lookup == nil {
			return v, nil
		}
		found, err := c.opts.Lookup.Exists(c, table, column, v, 0)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, c.Fail("The selected %s is invalid.", c.Label())
		}
		return v, nil
	})
}

// Each applies rules to every element of an array; violations are keyed
// "<field>.<index>".
func Each(rules ...Rule) Rule {
	return RuleFunc(func(c *Context, v any) (any, error) {
		items, ok := v.([]any)
		if !ok {
			return nil, c.Fail("The %s field must be an array.", c.Label())
		}
		out := make([]any, len(items))
		for i, item := range items {
			key := fmt.Sprintf("%s.%d", c.Field, i)
			ic := &Context{Context: c.Context, Field: key, Input: c.Input, opts: c.opts}
			if isBlank(item) {
				return nil, &violation{key: key, msg: fmt.Sprintf("The %s field is required.", ic.Label())}
			}
			val, err := applyRules(ic, rules, item)
			if err != nil {
				if vi, ok := err.(*violation); ok && vi.key == "" {
					vi.key = key
				}
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	})
}

func measure(v any) (float64, string) {
	switch t := v.(type) {
	case string:
		return float64(utf8.RuneCountInString(t)), " characters"
	case []any:
		return float64(len(t)), " items"
	}
	f, _ := toFloat(v)
	return f, ""
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
