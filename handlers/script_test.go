package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScript(t *testing.T, source string, input any) (any, error) {
	t.Helper()
	h := newScript(Deps{})
	return h.Execute(context.Background(), input, testView(), map[string]any{"source": source})
}

func TestScriptHandlerTransformsMaps(t *testing.T) {
	out, err := runScript(t, `
		function transform(input)
			input.doubled = input.count * 2
			return input
		end
	`, map[string]any{"count": 21})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, float64(42), m["doubled"])
	assert.Equal(t, float64(21), m["count"])
}

func TestScriptHandlerArrays(t *testing.T) {
	out, err := runScript(t, `
		function transform(input)
			local result = {}
			for i, v in ipairs(input) do
				result[i] = string.upper(v)
			end
			return result
		end
	`, []any{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "B", "C"}, out)
}

func TestScriptHandlerSparseTableIsNotAnArray(t *testing.T) {
	// A single huge integer key must not allocate a slice of that length.
	out, err := runScript(t, `
		function transform(input)
			return {[1000000000] = "x"}
		end
	`, nil)
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok, "sparse table should come back as a map, got %T", out)
	assert.Len(t, m, 1)
}

func TestScriptHandlerJSONHelpers(t *testing.T) {
	out, err := runScript(t, `
		function transform(input)
			local decoded = json_decode(input.payload)
			return json_encode({n = decoded.n + 1})
		end
	`, map[string]any{"payload": `{"n": 1}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": 2}`, out.(string))
}

func TestScriptHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"no transform function", `local x = 1`},
		{"syntax error", `function transform(`},
		{"runtime error", `function transform(input) error("boom") end`},
		{"file access blocked", `function transform(input) return dofile("/etc/passwd") end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runScript(t, tt.source, map[string]any{})
			assert.Error(t, err)
		})
	}
}

func TestScriptHandlerRequiresSource(t *testing.T) {
	h := newScript(Deps{})
	_, err := h.Execute(context.Background(), nil, testView(), map[string]any{})
	assert.Error(t, err)
}
