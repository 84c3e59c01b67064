package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	lua "github.com/Shopify/go-lua"

	"github.com/graphline/graphline"
)

var metaScript = Metadata{
	Key: "script",
	Description: "Runs a sandboxed Lua transform over the input. The source " +
		"must define transform(input) returning the node's output.",
	ConfigSchema: map[string]any{
		"type":     "object",
		"required": []any{"source"},
		"properties": map[string]any{
			"source": map[string]any{"type": "string", "minLength": 1},
		},
	},
}

func newScript(Deps) graphline.Handler {
	return graphline.HandlerFunc(func(_ context.Context, input any, _ *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaScript, config); err != nil {
			return nil, err
		}

		// A fresh state per invocation keeps script runs isolated; graph
		// steps are provider-latency bound, so interpreter startup is noise.
		l := lua.NewState()
		setupSandbox(l)

		if err := lua.DoString(l, stringConfig(config, "source")); err != nil {
			return nil, fmt.Errorf("script: load: %w", err)
		}

		l.Global("transform")
		if l.TypeOf(-1) != lua.TypeFunction {
			return nil, fmt.Errorf("script: source does not define transform(input)")
		}
		pushValue(l, input)
		if err := l.ProtectedCall(1, 1, 0); err != nil {
			return nil, fmt.Errorf("script: transform: %w", err)
		}
		result := pullValue(l, -1)
		l.Pop(1)
		return result, nil
	})
}

// setupSandbox loads only side-effect-free libraries into the state.
func setupSandbox(l *lua.State) {
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	lua.Require(l, "string", lua.StringOpen, true)
	l.Pop(1)
	lua.Require(l, "table", lua.TableOpen, true)
	l.Pop(1)
	lua.Require(l, "math", lua.MathOpen, true)
	l.Pop(1)

	// File and code loading stay out of reach of node configs.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "print"} {
		l.PushNil()
		l.SetGlobal(name)
	}

	l.Register("json_encode", func(l *lua.State) int {
		v := pullValue(l, 1)
		data, err := json.Marshal(v)
		if err != nil {
			l.PushNil()
			return 1
		}
		l.PushString(string(data))
		return 1
	})
	l.Register("json_decode", func(l *lua.State) int {
		s, _ := l.ToString(1)
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			l.PushNil()
			return 1
		}
		pushValue(l, v)
		return 1
	})
}

// pushValue converts a Go value onto the Lua stack.
func pushValue(l *lua.State, v any) {
	switch val := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(val)
	case int:
		l.PushInteger(val)
	case int64:
		l.PushInteger(int(val))
	case float64:
		l.PushNumber(val)
	case string:
		l.PushString(val)
	case []any:
		l.NewTable()
		for i, item := range val {
			l.PushInteger(i + 1)
			pushValue(l, item)
			l.SetTable(-3)
		}
	case map[string]any:
		l.NewTable()
		for k, item := range val {
			l.PushString(k)
			pushValue(l, item)
			l.SetTable(-3)
		}
	default:
		if data, err := json.Marshal(val); err == nil {
			l.PushString(string(data))
		} else {
			l.PushNil()
		}
	}
}

// pullValue converts the Lua value at idx back to Go. Tables with contiguous
// integer keys become slices, everything else becomes maps.
func pullValue(l *lua.State, idx int) any {
	switch l.TypeOf(idx) {
	case lua.TypeNil:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		return n
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s
	case lua.TypeTable:
		l.PushValue(idx)

		isArray := true
		maxIndex := 0
		keys := 0
		l.PushNil()
		for l.Next(-2) {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
				l.Pop(2)
				break
			}
			keys++
			n, _ := l.ToNumber(-2)
			if i := int(n); i > maxIndex {
				maxIndex = i
			}
			l.Pop(1)
		}

		// Sparse integer keys ({[1e9]=1}) would otherwise allocate
		// maxIndex elements; only dense tables count as arrays.
		if isArray && maxIndex > 0 && maxIndex == keys {
			arr := make([]any, maxIndex)
			for i := 1; i <= maxIndex; i++ {
				l.PushInteger(i)
				l.Table(-2)
				arr[i-1] = pullValue(l, -1)
				l.Pop(1)
			}
			l.Pop(1)
			return arr
		}

		m := make(map[string]any)
		l.PushNil()
		for l.Next(-2) {
			// ToString converts a numeric key in place, which invalidates
			// the traversal key for Next; convert a copy instead.
			l.PushValue(-2)
			if key, ok := l.ToString(-1); ok {
				m[key] = pullValue(l, -2)
			}
			l.Pop(2)
		}
		l.Pop(1)
		return m
	default:
		return nil
	}
}
