package handlers

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/graphline/graphline"
)

// ValidationKey is the field the validate handler adds to its output. Graphs
// route on it with edge conditions ($._validation.isValid); the engine
// itself never inspects it.
const ValidationKey = "_validation"

var metaValidate = Metadata{
	Key: "validate",
	Description: "Validates the input against a JSON schema and annotates it " +
		"with a validation envelope. Schema violations are output, not errors, " +
		"unless strict is set.",
	ConfigSchema: map[string]any{
		"type":     "object",
		"required": []any{"schema"},
		"properties": map[string]any{
			"schema": map[string]any{"type": "object"},
			"strict": map[string]any{"type": "boolean"},
		},
	},
}

func newValidate(deps Deps) graphline.Handler {
	return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaValidate, config); err != nil {
			return nil, err
		}
		schema, _ := config["schema"].(map[string]any)

		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema),
			gojsonschema.NewGoLoader(input),
		)
		if err != nil {
			return nil, fmt.Errorf("validate: %w", err)
		}

		var errs []any
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		envelope := map[string]any{
			"isValid": result.Valid(),
			"errors":  errs,
		}
		if !result.Valid() {
			deps.logger().Debug(ctx, "validation failed",
				"run", view.RunID(), "node", view.NodeID(), "errors", len(errs))
			if boolConfig(config, "strict", false) {
				return nil, fmt.Errorf("validate: input failed schema validation: %v", errs)
			}
		}

		out := map[string]any{ValidationKey: envelope}
		if m, ok := input.(map[string]any); ok {
			for k, v := range m {
				out[k] = v
			}
		} else {
			out["value"] = input
		}
		return out, nil
	})
}
