package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

func TestScriptFilter(t *testing.T) {
	f := mustParse(t, `{"type":"script","code":"payload.index >= 1000 && trigger == 'blockchain'"}`)

	got, err := f.Evaluate(blockEvent(2000))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = f.Evaluate(blockEvent(500))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestScriptFilterCompileErrors(t *testing.T) {
	_, err := Parse([]byte(`{"type":"script","code":"payload.index +"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, faaserrors.ErrRegistrationInvalid))

	// Non-boolean result is rejected at compile time.
	_, err = Parse([]byte(`{"type":"script","code":"payload.index + 1"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, faaserrors.ErrRegistrationInvalid))

	_, err = Parse([]byte(`{"type":"script","code":""}`))
	require.Error(t, err)
}

func TestScriptFilterMissingFieldIsEvaluationError(t *testing.T) {
	f := mustParse(t, `{"type":"script","code":"payload.nonexistent == 'x'"}`)

	event := types.NewEvent(types.TriggerBlockchain, types.SourceMock, "evt-2", types.MapValue(map[string]types.Value{}))
	_, err := f.Evaluate(event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faaserrors.ErrFilterEvaluation))
}

func TestScriptFilterCostBudget(t *testing.T) {
	// A wide comprehension over a large list blows the evaluation budget.
	f := mustParse(t, `{"type":"script","code":"payload.items.all(a, payload.items.all(b, payload.items.all(c, a + b + c >= 0)))"}`)

	items := make([]types.Value, 200)
	for i := range items {
		items[i] = types.Int64Value(int64(i))
	}
	event := types.NewEvent(types.TriggerBlockchain, types.SourceMock, "evt-3", types.MapValue(map[string]types.Value{
		"items": types.ListValue(items...),
	}))

	_, err := f.Evaluate(event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faaserrors.ErrFilterEvaluation))
}

func TestScriptInsideCompound(t *testing.T) {
	raw := `{"type":"compound","operator":"and","conditions":[
		{"type":"range","field":"index","min":0,"max":10000},
		{"type":"script","code":"payload.tx.type.startsWith('Invocation')"}
	]}`
	got, err := mustParse(t, raw).Evaluate(blockEvent(5))
	require.NoError(t, err)
	assert.True(t, got)
}
