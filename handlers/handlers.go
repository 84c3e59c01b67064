// Package handlers provides the built-in handler set for graphline
// pipelines: data plumbing (passthrough, template, jsonpath, script),
// validation, generative-provider steps (retrieve, transform, analyze), and
// triple-store persistence.
//
// Each handler type carries metadata with a JSON schema for its node config;
// RegisterAll validates nothing up front but exposes the schemas so loaders
// and the CLI can.
package handlers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/graphline/graphline"
)

// Deps holds the external collaborators built-in handlers draw on. Any field
// may be nil; handlers that need a missing dependency fail at execution
// time with a clear error.
type Deps struct {
	// Provider is the generative/knowledge client used by retrieve,
	// transform and analyze.
	Provider Provider

	// Triples receives records from the store handler.
	Triples TripleStore

	// Cache backs provider-response caching for the retrieve handler.
	Cache graphline.Store

	// Logger, if set, receives handler diagnostics.
	Logger graphline.Logger
}

func (d Deps) logger() graphline.Logger {
	if d.Logger == nil {
		return graphline.NopLogger{}
	}
	return d.Logger
}

// Metadata describes a built-in handler type.
type Metadata struct {
	Key          string
	Description  string
	ConfigSchema map[string]any
}

// builders maps handler keys to their metadata and constructor.
type builder struct {
	meta Metadata
	make func(Deps) graphline.Handler
}

var builders = map[string]builder{
	"passthrough": {metaPassthrough, newPassthrough},
	"template":    {metaTemplate, newTemplate},
	"jsonpath":    {metaJSONPath, newJSONPath},
	"validate":    {metaValidate, newValidate},
	"retrieve":    {metaRetrieve, newRetrieve},
	"transform":   {metaTransform, newTransform},
	"analyze":     {metaAnalyze, newAnalyze},
	"store":       {metaStore, newStore},
	"script":      {metaScript, newScript},
}

// Keys returns all built-in handler keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(builders))
	for k := range builders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Describe returns the metadata for a built-in handler key.
func Describe(key string) (Metadata, bool) {
	b, ok := builders[key]
	return b.meta, ok
}

// RegisterAll registers every built-in handler with the registry. Wrappers,
// typically from the middleware package, are applied to each handler in
// order before registration.
func RegisterAll(reg *graphline.HandlerRegistry, deps Deps, wrappers ...func(graphline.Handler) graphline.Handler) error {
	for key, b := range builders {
		h := b.make(deps)
		for _, wrap := range wrappers {
			h = wrap(h)
		}
		if err := reg.Register(key, h); err != nil {
			return fmt.Errorf("handlers: register %s: %w", key, err)
		}
	}
	return nil
}

// validateConfig checks a node config against a handler's config schema.
func validateConfig(meta Metadata, config map[string]any) error {
	if len(meta.ConfigSchema) == 0 {
		return nil
	}
	if config == nil {
		config = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(meta.ConfigSchema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("%s config: %w", meta.Key, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s config invalid: %s", meta.Key, strings.Join(msgs, "; "))
	}
	return nil
}

func stringConfig(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

func boolConfig(config map[string]any, key string, def bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return def
}
