// Package document models dynamically shaped configuration documents: nested
// objects, arrays and scalars loaded from JSON or YAML and written back out.
//
// A Document is a tagged union. Navigation is explicit and fallible: Get and
// Set return a *PathError instead of panicking when an intermediate node is
// missing or has the wrong shape.
package document

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant of the union a Document holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Document is one node of a configuration tree.
// The zero value is null. A nil *Document is also treated as null.
//
// Numbers keep their source text so that an unmodified document serializes
// back to the same values (integers stay integers).
type Document struct {
	v any // nil | bool | json.Number | string | []*Document | map[string]*Document
}

// Null returns a new null node.
func Null() *Document { return &Document{} }

// NewBool returns a boolean node.
func NewBool(b bool) *Document { return &Document{v: b} }

// NewString returns a string node.
func NewString(s string) *Document { return &Document{v: s} }

// NewNumber returns a number node holding the given literal.
func NewNumber(n json.Number) *Document { return &Document{v: n} }

// NewInt returns an integer number node.
func NewInt(i int64) *Document { return &Document{v: json.Number(strconv.FormatInt(i, 10))} }

// NewFloat returns a floating-point number node. Integral values keep a
// trailing ".0" so they are written as floats.
// NaN and ±Inf have no textual form in JSON; callers must not pass them.
func NewFloat(f float64) *Document { return &Document{v: json.Number(formatFloat(f))} }

// NewArray returns an array node holding items.
func NewArray(items ...*Document) *Document {
	arr := make([]*Document, len(items))
	copy(arr, items)
	return &Document{v: arr}
}

// NewObject returns an empty object node.
func NewObject() *Document { return &Document{v: map[string]*Document{}} }

func formatFloat(f float64) string {
	abs := math.Abs(f)
	var s string
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Kind reports the node variant.
func (d *Document) Kind() Kind {
	if d == nil {
		return KindNull
	}
	switch d.v.(type) {
	case bool:
		return KindBool
	case json.Number:
		return KindNumber
	case string:
		return KindString
	case []*Document:
		return KindArray
	case map[string]*Document:
		return KindObject
	}
	return KindNull
}

// IsNull reports whether d is null.
func (d *Document) IsNull() bool { return d.Kind() == KindNull }

// Bool returns the boolean value and whether d is a bool.
func (d *Document) Bool() (bool, bool) {
	if d == nil {
		return false, false
	}
	b, ok := d.v.(bool)
	return b, ok
}

// Str returns the string value and whether d is a string.
func (d *Document) Str() (string, bool) {
	if d == nil {
		return "", false
	}
	s, ok := d.v.(string)
	return s, ok
}

// Number returns the number literal and whether d is a number.
func (d *Document) Number() (json.Number, bool) {
	if d == nil {
		return "", false
	}
	n, ok := d.v.(json.Number)
	return n, ok
}

// Float returns the numeric value as float64.
func (d *Document) Float() (float64, bool) {
	n, ok := d.Number()
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int returns the numeric value as int64. Non-integral numbers are truncated
// toward zero.
func (d *Document) Int() (int64, bool) {
	n, ok := d.Number()
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// Items returns the elements of an array node, or nil for any other kind.
// The slice is shared with d; mutating elements mutates d.
func (d *Document) Items() []*Document {
	if d == nil {
		return nil
	}
	arr, _ := d.v.([]*Document)
	return arr
}

// Append adds items to an array node. It is a no-op on other kinds.
func (d *Document) Append(items ...*Document) {
	if arr, ok := d.v.([]*Document); ok {
		d.v = append(arr, items...)
	}
}

// Field returns the value stored under key in an object node.
func (d *Document) Field(key string) (*Document, bool) {
	if d == nil {
		return nil, false
	}
	obj, ok := d.v.(map[string]*Document)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Has reports whether an object node carries key.
func (d *Document) Has(key string) bool {
	_, ok := d.Field(key)
	return ok
}

// SetField stores v under key in an object node. It is a no-op on other kinds.
func (d *Document) SetField(key string, v *Document) {
	if obj, ok := d.v.(map[string]*Document); ok {
		obj[key] = v
	}
}

// DeleteField removes key from an object node.
func (d *Document) DeleteField(key string) {
	if obj, ok := d.v.(map[string]*Document); ok {
		delete(obj, key)
	}
}

// Keys returns the sorted keys of an object node.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	obj, ok := d.v.(map[string]*Document)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of elements of an array or entries of an object.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	switch v := d.v.(type) {
	case []*Document:
		return len(v)
	case map[string]*Document:
		return len(v)
	}
	return 0
}

// Clone returns a fully independent deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return Null()
	}
	switch v := d.v.(type) {
	case []*Document:
		arr := make([]*Document, len(v))
		for i, item := range v {
			arr[i] = item.Clone()
		}
		return &Document{v: arr}
	case map[string]*Document:
		obj := make(map[string]*Document, len(v))
		for k, item := range v {
			obj[k] = item.Clone()
		}
		return &Document{v: obj}
	}
	return &Document{v: d.v}
}

// Equal reports whether a and b hold the same value. Numbers compare by
// value, so 5 and 5.0 are equal.
func Equal(a, b *Document) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindNull:
		return true
	case KindBool, KindString:
		return a.v == b.v
	case KindNumber:
		return numbersEqual(a.v.(json.Number), b.v.(json.Number))
	case KindArray:
		x, y := a.Items(), b.Items()
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case KindObject:
		x, y := a.v.(map[string]*Document), b.v.(map[string]*Document)
		if len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	ai, aerr := a.Int64()
	bi, berr := b.Int64()
	if aerr == nil && berr == nil {
		return ai == bi
	}
	af, aerr := a.Float64()
	bf, berr := b.Float64()
	return aerr == nil && berr == nil && af == bf
}

// FromValue converts a decoded Go value (as produced by encoding/json or
// yaml.v3) into a Document.
func FromValue(v any) (*Document, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case *Document:
		return x.Clone(), nil
	case bool:
		return NewBool(x), nil
	case string:
		return NewString(x), nil
	case json.Number:
		if _, err := x.Float64(); err != nil {
			return nil, fmt.Errorf("invalid number %q", string(x))
		}
		return NewNumber(x), nil
	case int:
		return NewInt(int64(x)), nil
	case int64:
		return NewInt(x), nil
	case uint64:
		return NewNumber(json.Number(strconv.FormatUint(x, 10))), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("non-finite number %v", x)
		}
		return NewFloat(x), nil
	case []any:
		arr := make([]*Document, len(x))
		for i, item := range x {
			d, err := FromValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = d
		}
		return &Document{v: arr}, nil
	case map[string]any:
		obj := make(map[string]*Document, len(x))
		for k, item := range x {
			d, err := FromValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = d
		}
		return &Document{v: obj}, nil
	case map[any]any:
		obj := make(map[string]*Document, len(x))
		for k, item := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			d, err := FromValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ks, err)
			}
			obj[ks] = d
		}
		return &Document{v: obj}, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

// Value converts d back into plain Go values: nil, bool, json.Number,
// string, []any and map[string]any.
func (d *Document) Value() any {
	if d == nil {
		return nil
	}
	switch v := d.v.(type) {
	case []*Document:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item.Value()
		}
		return out
	case map[string]*Document:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = item.Value()
		}
		return out
	}
	return d.v
}
