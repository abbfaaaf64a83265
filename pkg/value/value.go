// Package value provides the closed value type used for script variables.
// Variables parsed from front matter, chain parameters, and instruction
// arguments are all converted into Value so that dot-path lookups and
// template filters can switch exhaustively over a fixed set of kinds
// instead of type-asserting on interface{}.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// Value is a tagged variant over the types a script variable may hold.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	boo  bool
	list []Value
	dict map[string]Value
}

// Map is a variable mapping as held by an execution context.
type Map map[string]Value

func Null() Value               { return Value{} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(n float64) Value    { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value         { return Value{kind: KindBool, boo: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }
func Dict(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, dict: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload. Zero value for non-string kinds.
func (v Value) Str() string { return v.str }

// Num returns the numeric payload. Zero value for non-number kinds.
func (v Value) Num() float64 { return v.num }

// Boolean returns the bool payload. Zero value for non-bool kinds.
func (v Value) Boolean() bool { return v.boo }

// Items returns the list payload, or nil for non-list kinds.
func (v Value) Items() []Value { return v.list }

// Fields returns the map payload, or nil for non-map kinds.
func (v Value) Fields() map[string]Value { return v.dict }

// Get returns the named field of a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	item, ok := v.dict[key]
	return item, ok
}

// String renders the value as text, the form substituted into templates.
// Numbers drop a trailing ".0" so integer-valued parameters round-trip
// cleanly through YAML.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.boo)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return strings.Join(parts, ", ")
	case KindMap:
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.dict[k].String())
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// FromAny converts a value decoded by yaml or json into a Value.
// Unknown types are stringified via fmt so nothing is silently dropped.
func FromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case map[string]interface{}:
		dict := make(map[string]Value, len(t))
		for k, item := range t {
			dict[k] = FromAny(item)
		}
		return Dict(dict)
	case map[interface{}]interface{}:
		dict := make(map[string]Value, len(t))
		for k, item := range t {
			dict[fmt.Sprintf("%v", k)] = FromAny(item)
		}
		return Dict(dict)
	case Value:
		return t
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// FromAnyMap converts a decoded map into a variable Map. Nil input yields
// an empty, usable map.
func FromAnyMap(raw map[string]interface{}) Map {
	vars := make(Map, len(raw))
	for k, item := range raw {
		vars[k] = FromAny(item)
	}
	return vars
}

// ToAny converts a Value back to the plain types json/yaml marshal.
func (v Value) ToAny() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.boo
	case KindList:
		items := make([]interface{}, len(v.list))
		for i, item := range v.list {
			items[i] = item.ToAny()
		}
		return items
	case KindMap:
		dict := make(map[string]interface{}, len(v.dict))
		for k, item := range v.dict {
			dict[k] = item.ToAny()
		}
		return dict
	}
	return nil
}

// Lookup resolves a dot-path against a variable map, walking nested map
// values key by key. Numeric segments index into lists. Any missing
// segment short-circuits to (null, false).
func Lookup(vars Map, path string) (Value, bool) {
	if path == "" {
		return Value{}, false
	}
	segments := strings.Split(path, ".")
	current, ok := vars[segments[0]]
	if !ok {
		return Value{}, false
	}
	for _, seg := range segments[1:] {
		switch current.kind {
		case KindMap:
			current, ok = current.dict[seg]
			if !ok {
				return Value{}, false
			}
		case KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(current.list) {
				return Value{}, false
			}
			current = current.list[idx]
		default:
			return Value{}, false
		}
	}
	return current, true
}

// Merge returns a copy of base with over laid on top. Neither input is
// mutated; chained scripts receive merged copies, never shared maps.
func Merge(base, over Map) Map {
	merged := make(Map, len(base)+len(over))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the map. Values are immutable once
// constructed, so a shallow copy is enough to isolate invocations.
func Clone(vars Map) Map {
	return Merge(vars, nil)
}
