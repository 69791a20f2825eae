// Package validation evaluates declarative per-field constraint schemas
// against loosely typed input (decoded JSON or form values) and returns
// either normalized data or a field->message map.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Input is the raw field map submitted by a caller.
type Input map[string]any

// Violations maps a field name to its first failing message.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records msg for field unless the field already failed.
func (v Violations) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// Error is returned when one or more fields fail their constraints.
type Error struct {
	Violations Violations
	order      []string
}

// NewError builds an Error from a single field message.
func NewError(field, msg string) *Error {
	return &Error{Violations: Violations{field: msg}, order: []string{field}}
}

func (e *Error) Error() string {
	return "validation failed: " + e.First()
}

// First returns the message of the first failing field in schema order.
func (e *Error) First() string {
	for _, f := range e.order {
		if msg, ok := e.Violations[f]; ok {
			return msg
		}
	}
	for _, msg := range e.Violations {
		return msg
	}
	return ""
}

// Lookup answers uniqueness and existence questions against storage.
// ignoreID excludes the row being updated (0 means none).
type Lookup interface {
	Exists(ctx context.Context, table, column string, value any, ignoreID uint) (bool, error)
}

// Options tune a single Validate call.
type Options struct {
	Lookup   Lookup
	IgnoreID uint
	// Partial skips absent fields entirely, for update payloads.
	Partial bool
}

// Field binds a name to its ordered constraints.
type Field struct {
	Name  string
	Rules []Rule
}

// F is shorthand for building a Field.
func F(name string, rules ...Rule) Field {
	return Field{Name: name, Rules: rules}
}

// Schema is an ordered list of fields.
type Schema []Field

// Only returns the subset of the schema for the named fields.
func (s Schema) Only(names ...string) Schema {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	out := make(Schema, 0, len(names))
	for _, f := range s {
		if keep[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks every field and returns the normalized values of the
// fields that were present (or defaulted). Fields absent from the schema are
// dropped. A storage failure inside a rule is returned as-is.
func (s Schema) Validate(ctx context.Context, in Input, opts Options) (Data, error) {
	data := Data{}
	verr := &Error{Violations: Violations{}}

	for _, f := range s {
		raw, present := in[f.Name]
		if present && isBlank(raw) {
			raw = nil
		}
		flags := flagsOf(f.Rules)

		if raw == nil {
			switch {
			case !present && (opts.Partial || flags.sometimes):
			case !present && flags.hasDefault:
				data[f.Name] = flags.def
			case flags.required:
				verr.add(f.Name, fmt.Sprintf("The %s field is required.", label(f.Name)))
			case present:
				data[f.Name] = nil
			}
			continue
		}

		c := &Context{Context: ctx, Field: f.Name, Input: in, opts: opts}
		value, err := applyRules(c, f.Rules, raw)
		if err != nil {
			var v *violation
			if errors.As(err, &v) {
				verr.add(v.field(f.Name), v.msg)
				continue
			}
			return nil, fmt.Errorf("validate %s: %w", f.Name, err)
		}
		data[f.Name] = value
	}

	if !verr.Violations.Empty() {
		return nil, verr
	}
	return data, nil
}

func applyRules(c *Context, rules []Rule, value any) (any, error) {
	for _, r := range rules {
		next, err := r.Apply(c, value)
		if err != nil {
			return nil, err
		}
		value = next
	}
	return value, nil
}

func (e *Error) add(field, msg string) {
	if _, ok := e.Violations[field]; ok {
		return
	}
	e.Violations[field] = msg
	e.order = append(e.order, field)
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func label(field string) string {
	field = strings.TrimSuffix(field, "_id")
	return strings.ReplaceAll(field, "_", " ")
}
