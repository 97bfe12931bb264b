package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind enumerates the closed set of payload value kinds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt64
	KindBool
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a closed tagged union carrying event payloads: block headers,
// transaction bodies or notification arguments, without schema coupling to
// the scheduler. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	i64  int64
	b    bool
	list []Value
	m    map[string]Value
}

func StringValue(s string) Value        { return Value{kind: KindString, str: s} }
func Int64Value(i int64) Value          { return Value{kind: KindInt64, i64: i} }
func BoolValue(b bool) Value            { return Value{kind: KindBool, b: b} }
func ListValue(items ...Value) Value    { return Value{kind: KindList, list: items} }
func MapValue(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsInt64() (int64, bool)   { return v.i64, v.kind == KindInt64 }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }
func (v Value) AsList() ([]Value, bool)  { return v.list, v.kind == KindList }
func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// Field returns the named entry of a map value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	item, ok := v.m[name]
	return item, ok
}

// Lookup traverses a dotted path ("tx.notifications.0.contract") through
// nested maps and lists. Returns false when any segment is absent.
func (v Value) Lookup(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	current := v
	for _, segment := range strings.Split(path, ".") {
		switch current.kind {
		case KindMap:
			next, ok := current.m[segment]
			if !ok {
				return Value{}, false
			}
			current = next
		case KindList:
			idx, err := strconv.Atoi(segment)
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

// Stringify renders a scalar value for pattern matching. Lists and maps
// render as their compact JSON form.
func (v Value) Stringify() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return strconv.FormatInt(v.i64, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// Equal reports deep equality of two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindInt64:
		return v.i64 == other.i64
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for key, item := range v.m {
			otherItem, ok := other.m[key]
			if !ok || !item.Equal(otherItem) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindInt64:
		return json.Marshal(v.i64)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts decoded JSON data into a Value. Integral numbers
// become Int64; non-integral numbers are carried as their decimal string
// since the union is deliberately float-free.
func FromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int64Value(i), nil
		}
		return StringValue(t.String()), nil
	case float64:
		if t == math.Trunc(t) && t >= math.MinInt64 && t <= math.MaxInt64 {
			return Int64Value(int64(t)), nil
		}
		return StringValue(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case int:
		return Int64Value(int64(t)), nil
	case int64:
		return Int64Value(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return StringValue(strconv.FormatUint(t, 10)), nil
		}
		return Int64Value(int64(t)), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			parsed, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, parsed)
		}
		return ListValue(items...), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for key, item := range t {
			parsed, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			m[key] = parsed
		}
		return MapValue(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported payload type %T", raw)
	}
}

// ToInterface converts a Value back into plain Go data, the shape handed to
// sandboxed function code.
func (v Value) ToInterface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return v.i64
	case KindBool:
		return v.b
	case KindList:
		items := make([]interface{}, len(v.list))
		for i, item := range v.list {
			items[i] = item.ToInterface()
		}
		return items
	case KindMap:
		m := make(map[string]interface{}, len(v.m))
		for key, item := range v.m {
			m[key] = item.ToInterface()
		}
		return m
	default:
		return nil
	}
}
