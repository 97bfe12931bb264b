package filter

import (
	"strings"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// Evaluate runs the filter against an event. It is pure and re-entrant:
// the same (filter, event) pair always yields the same result, so backfill
// replays produce identical matches.
//
// Missing fields evaluate to non-match rather than error for Value, Range
// and Pattern conditions; that non-match propagates normally through
// Compound. An ApplyIf gate that is false, or that references an absent
// field, makes the guarded condition vacuously true.
func (f *Filter) Evaluate(event types.Event) (bool, error) {
	if f == nil {
		return true, nil
	}

	if f.ApplyIf != nil {
		applies, err := f.ApplyIf.evaluateNode(event)
		if err != nil {
			return false, err
		}
		if !applies {
			return true, nil
		}
	}

	return f.evaluateNode(event)
}

func (f *Filter) evaluateNode(event types.Event) (bool, error) {
	switch f.Type {
	case TypeValue:
		return f.evaluateValue(event), nil
	case TypeRange:
		return f.evaluateRange(event), nil
	case TypePattern:
		field, ok := event.Data.Payload.Lookup(f.Field)
		if !ok {
			return false, nil
		}
		return f.regex.MatchString(field.Stringify()), nil
	case TypeCompound:
		return f.evaluateCompound(event)
	case TypeScript:
		return f.script.eval(event)
	}
	return false, faaserrors.FilterError("unknown filter type %q", f.Type)
}

func (f *Filter) evaluateValue(event types.Event) bool {
	field, ok := event.Data.Payload.Lookup(f.Field)
	if !ok {
		return false
	}

	switch f.Operator {
	case OpEq:
		return field.Equal(f.Value)
	case OpNeq:
		return !field.Equal(f.Value)
	case OpIn:
		items, _ := f.Value.AsList()
		for _, item := range items {
			if field.Equal(item) {
				return true
			}
		}
		return false
	}

	// Ordering operators: numeric when both sides are int64, lexicographic
	// when both are strings, otherwise no match.
	if left, ok := field.AsInt64(); ok {
		right, ok := f.Value.AsInt64()
		if !ok {
			return false
		}
		return compareOrdered(f.Operator, left, right)
	}
	if left, ok := field.AsString(); ok {
		right, ok := f.Value.AsString()
		if !ok {
			return false
		}
		return compareOrdered(f.Operator, strings.Compare(left, right), 0)
	}
	return false
}

func compareOrdered[T int64 | int](op Operator, left, right T) bool {
	switch op {
	case OpGt:
		return left > right
	case OpGte:
		return left >= right
	case OpLt:
		return left < right
	case OpLte:
		return left <= right
	}
	return false
}

func (f *Filter) evaluateRange(event types.Event) bool {
	field, ok := event.Data.Payload.Lookup(f.Field)
	if !ok {
		return false
	}
	v, ok := field.AsInt64()
	if !ok {
		return false
	}
	return v >= f.Min && v <= f.Max
}

func (f *Filter) evaluateCompound(event types.Event) (bool, error) {
	for _, condition := range f.Conditions {
		result, err := condition.Evaluate(event)
		if err != nil {
			return false, err
		}
		if f.Op == CompoundAnd && !result {
			return false, nil
		}
		if f.Op == CompoundOr && result {
			return true, nil
		}
	}
	return f.Op == CompoundAnd, nil
}
