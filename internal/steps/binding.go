package steps

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"flowrunner/internal/flow"
	"flowrunner/internal/logging"
)

// ReservedNameField is display metadata carried in every model; it never binds.
const ReservedNameField = "Name"

// Field binds one named property onto a step instance.
type Field struct {
	Name string
	Kind Kind
	set  func(Step, Value) error
}

func field[T Step](name string, kind Kind, set func(T, Value) error) Field {
	return Field{
		Name: name,
		Kind: kind,
		set: func(s Step, v Value) error {
			typed, ok := s.(T)
			if !ok {
				return fmt.Errorf("field %s bound to %T", name, s)
			}
			return set(typed, v)
		},
	}
}

// BoolField binds a boolean property.
func BoolField[T Step](name string, set func(T, bool)) Field {
	return field(name, KindBool, func(s T, v Value) error {
		b, err := v.Bool()
		if err == nil {
			set(s, b)
		}
		return err
	})
}

// IntField binds an integer property.
func IntField[T Step](name string, set func(T, int)) Field {
	return field(name, KindInt, func(s T, v Value) error {
		n, err := v.Int()
		if err == nil {
			set(s, n)
		}
		return err
	})
}

// FloatField binds a floating point property.
func FloatField[T Step](name string, set func(T, float64)) Field {
	return field(name, KindFloat, func(s T, v Value) error {
		f, err := v.Float()
		if err == nil {
			set(s, f)
		}
		return err
	})
}

// StringField binds a text property.
func StringField[T Step](name string, set func(T, string)) Field {
	return field(name, KindString, func(s T, v Value) error {
		str, err := v.String()
		if err == nil {
			set(s, str)
		}
		return err
	})
}

// DurationField binds a duration property.
func DurationField[T Step](name string, set func(T, time.Duration)) Field {
	return field(name, KindString, func(s T, v Value) error {
		d, err := v.Duration()
		if err == nil {
			set(s, d)
		}
		return err
	})
}

// EnumField binds a text property restricted to allowed values. Matching is
// case-insensitive; the canonical spelling from allowed is stored. Integer
// values index into allowed.
func EnumField[T Step](name string, allowed []string, set func(T, string)) Field {
	return field(name, KindString, func(s T, v Value) error {
		if v.Kind() == KindInt {
			idx, _ := v.Int()
			if idx < 0 || idx >= len(allowed) {
				return fmt.Errorf("enum index %d out of range", idx)
			}
			set(s, allowed[idx])
			return nil
		}
		str, err := v.String()
		if err != nil {
			return err
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, strings.TrimSpace(str)) {
				set(s, candidate)
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %s", str, strings.Join(allowed, ", "))
	})
}

// StringListField binds a list of strings. A scalar becomes a single entry.
func StringListField[T Step](name string, set func(T, []string)) Field {
	return field(name, KindList, func(s T, v Value) error {
		items, err := v.List()
		if err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			str, err := item.String()
			if err != nil {
				return err
			}
			out = append(out, str)
		}
		set(s, out)
		return nil
	})
}

// ReferenceField binds an object reference given as {"Uid": ..., "Name": ...}
// or a bare UID string.
func ReferenceField[T Step](name string, set func(T, flow.Reference)) Field {
	return field(name, KindMap, func(s T, v Value) error {
		ref, err := referenceOf(v)
		if err == nil {
			set(s, ref)
		}
		return err
	})
}

func referenceOf(v Value) (flow.Reference, error) {
	if v.Kind() == KindString {
		str, _ := v.String()
		uid, err := uuid.Parse(strings.TrimSpace(str))
		if err != nil {
			return flow.Reference{}, fmt.Errorf("invalid reference %q", str)
		}
		return flow.Reference{UID: uid}, nil
	}
	m, err := v.Map()
	if err != nil {
		return flow.Reference{}, err
	}
	var ref flow.Reference
	for key, item := range m {
		str, err := item.String()
		if err != nil {
			continue
		}
		switch strings.ToLower(key) {
		case "uid":
			if ref.UID, err = uuid.Parse(str); err != nil {
				return flow.Reference{}, fmt.Errorf("invalid reference uid %q", str)
			}
		case "name":
			ref.Name = str
		case "type":
			ref.Type = str
		}
	}
	if ref.UID == uuid.Nil {
		return flow.Reference{}, fmt.Errorf("reference missing uid")
	}
	return ref, nil
}

// Bind applies props to step using the definition's binding table and
// returns how many fields were set. The reserved Name property and null
// values are skipped silently; unknown properties are logged at debug and
// coercion failures at error. Binding never fails the step.
func Bind(logger *slog.Logger, def Definition, step Step, props map[string]any) int {
	if logger == nil {
		logger = logging.NewNop()
	}
	bound := 0
	for key, raw := range props {
		if key == ReservedNameField || raw == nil {
			continue
		}
		f, ok := def.Field(key)
		if !ok {
			logger.Debug("step property has no matching field",
				logging.String("step_type", def.TypeID),
				logging.String("property", key),
			)
			continue
		}
		if err := f.set(step, ValueOf(raw)); err != nil {
			logging.ErrorWithContext(logger, "failed setting step property", "property_bind_failed",
				logging.String("step_type", def.TypeID),
				logging.String("property", key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the property value in the flow editor"),
			)
			continue
		}
		bound++
	}
	return bound
}
