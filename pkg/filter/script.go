package filter

import (
	"github.com/google/cel-go/cel"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// scriptCostLimit bounds the evaluation step budget of a script predicate.
// CEL is non-Turing-complete and has no I/O, which keeps script filters out
// of the matcher's trust boundary; the cost limit additionally caps
// pathological comprehensions over large payloads.
const scriptCostLimit = 10000

// scriptProgram is a compiled Script{code} predicate. The program is built
// once at parse time and shared across evaluations; cel programs are safe
// for concurrent use.
type scriptProgram struct {
	code    string
	program cel.Program
}

func compileScript(code string) (*scriptProgram, error) {
	if code == "" {
		return nil, faaserrors.Invalid("script filter requires code")
	}

	env, err := cel.NewEnv(
		cel.Variable("payload", cel.DynType),
		cel.Variable("trigger", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("event_id", cel.StringType),
	)
	if err != nil {
		return nil, faaserrors.Invalid("failed to create script environment: %v", err)
	}

	ast, issues := env.Compile(code)
	if issues != nil && issues.Err() != nil {
		return nil, faaserrors.Invalid("failed to compile script %q: %v", code, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, faaserrors.Invalid("script %q does not evaluate to a boolean", code)
	}

	program, err := env.Program(ast, cel.CostLimit(scriptCostLimit))
	if err != nil {
		return nil, faaserrors.Invalid("failed to build script program: %v", err)
	}

	return &scriptProgram{code: code, program: program}, nil
}

func (s *scriptProgram) eval(event types.Event) (bool, error) {
	activation := map[string]interface{}{
		"payload":  event.Data.Payload.ToInterface(),
		"trigger":  string(event.Context.Trigger),
		"source":   string(event.Context.Source),
		"event_id": event.Data.ID,
	}

	out, _, err := s.program.Eval(activation)
	if err != nil {
		// Missing payload fields and cost-limit hits both land here. The
		// matcher treats it as a non-match.
		return false, faaserrors.FilterError("script %q: %v", s.code, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, faaserrors.FilterError("script %q returned non-boolean %v", s.code, out.Value())
	}
	return result, nil
}
