// Package filter implements the composable filter expression language used
// by function triggers. Filters parse once per definition (regexes and
// script programs are compiled at parse time) and evaluate as pure,
// terminating predicates over event payloads.
package filter

import (
	"encoding/json"
	"fmt"
	"regexp"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

type FilterType string

const (
	TypeValue    FilterType = "value"
	TypeRange    FilterType = "range"
	TypePattern  FilterType = "pattern"
	TypeCompound FilterType = "compound"
	TypeScript   FilterType = "script"
)

type Operator string

const (
	OpEq  Operator = "=="
	OpNeq Operator = "!="
	OpGt  Operator = ">"
	OpGte Operator = ">="
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpIn  Operator = "in"
)

func (o Operator) valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn:
		return true
	}
	return false
}

type CompoundOp string

const (
	CompoundAnd CompoundOp = "and"
	CompoundOr  CompoundOp = "or"
)

// Filter is a compiled filter expression node. Exactly the fields of its
// Type are populated. An optional ApplyIf gate makes the condition
// conditional: a false (or unevaluable) gate renders the condition
// vacuously true.
type Filter struct {
	Type FilterType

	// Value
	Field    string
	Operator Operator
	Value    types.Value

	// Range
	Min int64
	Max int64

	// Pattern
	regex *regexp.Regexp

	// Compound
	Op         CompoundOp
	Conditions []*Filter

	// Script
	script *scriptProgram

	ApplyIf *Filter
}

type rawFilter struct {
	Type       FilterType      `json:"type"`
	Field      string          `json:"field,omitempty"`
	Operator   string          `json:"operator,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Min        json.RawMessage `json:"min,omitempty"`
	Max        json.RawMessage `json:"max,omitempty"`
	Regex      string          `json:"regex,omitempty"`
	Conditions []rawFilter     `json:"conditions,omitempty"`
	Code       string          `json:"code,omitempty"`
	ApplyIf    *rawFilter      `json:"apply_if,omitempty"`
}

// Parse compiles a filter definition from its JSON form. Parse errors are
// ErrRegistrationInvalid: they are rejected at registration time, never on
// the ingestion path.
func Parse(data []byte) (*Filter, error) {
	if len(data) == 0 {
		return nil, faaserrors.Invalid("empty filter definition")
	}
	var raw rawFilter
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, faaserrors.Invalid("malformed filter json: %v", err)
	}
	return compile(&raw)
}

func compile(raw *rawFilter) (*Filter, error) {
	f := &Filter{Type: raw.Type}

	switch raw.Type {
	case TypeValue:
		if raw.Field == "" {
			return nil, faaserrors.Invalid("value filter requires a field")
		}
		op := Operator(raw.Operator)
		if !op.valid() {
			return nil, faaserrors.Invalid("unknown operator %q", raw.Operator)
		}
		var value types.Value
		if err := json.Unmarshal(raw.Value, &value); err != nil {
			return nil, faaserrors.Invalid("bad comparison value: %v", err)
		}
		if op == OpIn {
			if _, ok := value.AsList(); !ok {
				return nil, faaserrors.Invalid("operator %q requires a list value", OpIn)
			}
		}
		f.Field = raw.Field
		f.Operator = op
		f.Value = value

	case TypeRange:
		if raw.Field == "" {
			return nil, faaserrors.Invalid("range filter requires a field")
		}
		min, err := parseBound(raw.Min)
		if err != nil {
			return nil, faaserrors.Invalid("bad range min: %v", err)
		}
		max, err := parseBound(raw.Max)
		if err != nil {
			return nil, faaserrors.Invalid("bad range max: %v", err)
		}
		if min > max {
			return nil, faaserrors.Invalid("range min %d exceeds max %d", min, max)
		}
		f.Field = raw.Field
		f.Min = min
		f.Max = max

	case TypePattern:
		if raw.Field == "" {
			return nil, faaserrors.Invalid("pattern filter requires a field")
		}
		re, err := regexp.Compile(raw.Regex)
		if err != nil {
			return nil, faaserrors.Invalid("bad regex %q: %v", raw.Regex, err)
		}
		f.Field = raw.Field
		f.regex = re

	case TypeCompound:
		op := CompoundOp(raw.Operator)
		if op != CompoundAnd && op != CompoundOr {
			return nil, faaserrors.Invalid("compound operator must be and/or, got %q", raw.Operator)
		}
		if len(raw.Conditions) == 0 {
			return nil, faaserrors.Invalid("compound filter requires conditions")
		}
		f.Op = op
		f.Conditions = make([]*Filter, 0, len(raw.Conditions))
		for i := range raw.Conditions {
			sub, err := compile(&raw.Conditions[i])
			if err != nil {
				return nil, fmt.Errorf("condition %d: %w", i, err)
			}
			f.Conditions = append(f.Conditions, sub)
		}

	case TypeScript:
		prog, err := compileScript(raw.Code)
		if err != nil {
			return nil, err
		}
		f.script = prog

	default:
		return nil, faaserrors.Invalid("unknown filter type %q", raw.Type)
	}

	if raw.ApplyIf != nil {
		gate, err := compile(raw.ApplyIf)
		if err != nil {
			return nil, fmt.Errorf("apply_if: %w", err)
		}
		f.ApplyIf = gate
	}

	return f, nil
}

func parseBound(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing bound")
	}
	var i int64
	if err := json.Unmarshal(raw, &i); err == nil {
		return i, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("bound must be an integer")
	}
	var parsed int64
	if _, err := fmt.Sscanf(s, "%d", &parsed); err != nil {
		return 0, fmt.Errorf("bound %q is not an integer", s)
	}
	return parsed, nil
}
