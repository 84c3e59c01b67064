package handlers

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/ohler55/ojg/jp"

	"github.com/graphline/graphline"
)

var metaPassthrough = Metadata{
	Key:         "passthrough",
	Description: "Returns its input unchanged. Default for start and end nodes.",
}

func newPassthrough(Deps) graphline.Handler {
	return graphline.Passthrough()
}

var metaTemplate = Metadata{
	Key:         "template",
	Description: "Renders a text/template over the input value.",
	ConfigSchema: map[string]any{
		"type":     "object",
		"required": []any{"template"},
		"properties": map[string]any{
			"template": map[string]any{"type": "string", "minLength": 1},
		},
	},
}

func newTemplate(Deps) graphline.Handler {
	return graphline.HandlerFunc(func(_ context.Context, input any, _ *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaTemplate, config); err != nil {
			return nil, err
		}
		tmpl, err := template.New("node").Parse(stringConfig(config, "template"))
		if err != nil {
			return nil, fmt.Errorf("parse template: %w", err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, input); err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return buf.String(), nil
	})
}

var metaJSONPath = Metadata{
	Key:         "jsonpath",
	Description: "Extracts data from the input using a JSONPath expression.",
	ConfigSchema: map[string]any{
		"type":     "object",
		"required": []any{"path"},
		"properties": map[string]any{
			"path":     map[string]any{"type": "string", "minLength": 1},
			"multiple": map[string]any{"type": "boolean"},
			"default":  map[string]any{},
		},
	},
}

func newJSONPath(Deps) graphline.Handler {
	return graphline.HandlerFunc(func(_ context.Context, input any, _ *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaJSONPath, config); err != nil {
			return nil, err
		}
		expr, err := jp.ParseString(stringConfig(config, "path"))
		if err != nil {
			return nil, fmt.Errorf("parse jsonpath: %w", err)
		}
		values := expr.Get(input)
		if len(values) == 0 {
			if def, ok := config["default"]; ok {
				return def, nil
			}
			return nil, fmt.Errorf("jsonpath %q matched nothing", stringConfig(config, "path"))
		}
		if boolConfig(config, "multiple", false) {
			return values, nil
		}
		return values[0], nil
	})
}
