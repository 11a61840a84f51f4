package steps

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind tags the dynamic type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "null"
	}
}

// Value is one property from a part's model.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

// ValueOf wraps a decoded JSON value.
func ValueOf(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Value{}
	case Value:
		return v
	case bool:
		return Value{kind: KindBool, b: v}
	case int:
		return Value{kind: KindInt, i: int64(v)}
	case int64:
		return Value{kind: KindInt, i: v}
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return Value{kind: KindInt, i: int64(v)}
		}
		return Value{kind: KindFloat, f: v}
	case string:
		return Value{kind: KindString, s: v}
	case []string:
		list := make([]Value, len(v))
		for i, item := range v {
			list[i] = Value{kind: KindString, s: item}
		}
		return Value{kind: KindList, list: list}
	case []any:
		list := make([]Value, len(v))
		for i, item := range v {
			list[i] = ValueOf(item)
		}
		return Value{kind: KindList, list: list}
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, item := range v {
			m[k] = ValueOf(item)
		}
		return Value{kind: KindMap, m: m}
	default:
		return Value{kind: KindString, s: fmt.Sprint(v)}
	}
}

// Kind returns the held type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool coerces to a boolean. Strings "true"/"false"/"1"/"0" are accepted.
func (v Value) Bool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i != 0, nil
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to bool", v.s)
		}
		return b, nil
	}
	return false, v.mismatch(KindBool)
}

// Int coerces to an integer. Floats must be whole.
func (v Value) Int() (int, error) {
	switch v.kind {
	case KindInt:
		return int(v.i), nil
	case KindFloat:
		if v.f != math.Trunc(v.f) {
			return 0, fmt.Errorf("cannot convert %v to int", v.f)
		}
		return int(v.f), nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		n, err := strconv.Atoi(strings.TrimSpace(v.s))
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int", v.s)
		}
		return n, nil
	}
	return 0, v.mismatch(KindInt)
}

// Float coerces to a float.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindInt:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", v.s)
		}
		return f, nil
	}
	return 0, v.mismatch(KindFloat)
}

// String renders scalars as text. Lists and maps are rejected.
func (v Value) String() (string, error) {
	switch v.kind {
	case KindString:
		return v.s, nil
	case KindBool:
		return strconv.FormatBool(v.b), nil
	case KindInt:
		return strconv.FormatInt(v.i, 10), nil
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64), nil
	}
	return "", v.mismatch(KindString)
}

// Duration accepts Go duration strings ("90s"), clock strings
// ("hh:mm:ss" or "d.hh:mm:ss"), or a number of seconds.
func (v Value) Duration() (time.Duration, error) {
	switch v.kind {
	case KindInt:
		return time.Duration(v.i) * time.Second, nil
	case KindFloat:
		return time.Duration(v.f * float64(time.Second)), nil
	case KindString:
		s := strings.TrimSpace(v.s)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		if d, ok := parseClock(s); ok {
			return d, nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		return 0, fmt.Errorf("cannot convert %q to duration", v.s)
	}
	return 0, v.mismatch(KindString)
}

// List returns list elements. A scalar becomes a one-element list.
func (v Value) List() ([]Value, error) {
	switch v.kind {
	case KindList:
		return v.list, nil
	case KindNull:
		return nil, nil
	case KindMap:
		return nil, v.mismatch(KindList)
	}
	return []Value{v}, nil
}

// Map returns map entries.
func (v Value) Map() (map[string]Value, error) {
	if v.kind != KindMap {
		return nil, v.mismatch(KindMap)
	}
	return v.m, nil
}

// Interface converts back to plain Go values.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = v.m[k].Interface()
		}
		return out
	}
	return nil
}

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("expected %s, got %s", want, v.kind)
}

func parseClock(s string) (time.Duration, bool) {
	var days int
	if dot := strings.IndexByte(s, '.'); dot > 0 && dot < strings.IndexByte(s, ':') {
		d, err := strconv.Atoi(s[:dot])
		if err != nil {
			return 0, false
		}
		days, s = d, s[dot+1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	total := time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second))
	return total, true
}
