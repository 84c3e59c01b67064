package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/graphline/graphline"
)

// Provider is the generative content/knowledge client used by the retrieve,
// transform and analyze handlers. Implementations perform network I/O and
// must honor ctx.
type Provider interface {
	Generate(ctx context.Context, prompt string) (ProviderResponse, error)
}

// ProviderResponse is one provider completion plus its token accounting.
type ProviderResponse struct {
	Text   string
	Tokens graphline.TokenUsage
}

// cacheKeyPrefix namespaces cached provider responses in the shared store.
const cacheKeyPrefix = "graphline:cache:"

func renderPrompt(raw string, input any) (string, error) {
	tmpl, err := template.New("prompt").Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse prompt: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

var metaRetrieve = Metadata{
	Key: "retrieve",
	Description: "Queries the knowledge provider with a templated prompt and " +
		"returns the raw text, caching responses in the shared store.",
	ConfigSchema: map[string]any{
		"type":     "object",
		"required": []any{"prompt"},
		"properties": map[string]any{
			"prompt":          map[string]any{"type": "string", "minLength": 1},
			"cache":           map[string]any{"type": "boolean"},
			"cacheTtlSeconds": map[string]any{"type": "integer", "minimum": 1},
		},
	},
}

func newRetrieve(deps Deps) graphline.Handler {
	return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaRetrieve, config); err != nil {
			return nil, err
		}
		if deps.Provider == nil {
			return nil, fmt.Errorf("retrieve: no provider configured")
		}
		prompt, err := renderPrompt(stringConfig(config, "prompt"), input)
		if err != nil {
			return nil, fmt.Errorf("retrieve: %w", err)
		}

		useCache := boolConfig(config, "cache", true) && deps.Cache != nil
		cacheKey := cacheKeyPrefix + hashPrompt(prompt)
		if useCache {
			if data, ok, err := deps.Cache.Get(ctx, cacheKey); err == nil && ok {
				var cached map[string]any
				if json.Unmarshal(data, &cached) == nil {
					deps.logger().Debug(ctx, "provider cache hit", "node", view.NodeID())
					return cached, nil
				}
			}
		}

		resp, err := deps.Provider.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("retrieve: provider: %w", err)
		}
		view.RecordTokens(resp.Tokens)

		out := map[string]any{
			"text":  resp.Text,
			"query": prompt,
		}
		if useCache {
			ttl := time.Hour
			if secs, ok := toInt(config["cacheTtlSeconds"]); ok {
				ttl = time.Duration(secs) * time.Second
			}
			if data, err := json.Marshal(out); err == nil {
				if err := deps.Cache.Set(ctx, cacheKey, data, ttl); err != nil {
					deps.logger().Error(ctx, "provider cache write failed", "error", err)
				}
			}
		}
		return out, nil
	})
}

var metaTransform = Metadata{
	Key: "transform",
	Description: "Prompts the provider to emit JSON for the input text and " +
		"parses the response into structured data.",
	ConfigSchema: map[string]any{
		"type":     "object",
		"required": []any{"prompt"},
		"properties": map[string]any{
			"prompt": map[string]any{"type": "string", "minLength": 1},
		},
	},
}

func newTransform(deps Deps) graphline.Handler {
	return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaTransform, config); err != nil {
			return nil, err
		}
		if deps.Provider == nil {
			return nil, fmt.Errorf("transform: no provider configured")
		}
		prompt, err := renderPrompt(stringConfig(config, "prompt"), input)
		if err != nil {
			return nil, fmt.Errorf("transform: %w", err)
		}

		resp, err := deps.Provider.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("transform: provider: %w", err)
		}
		view.RecordTokens(resp.Tokens)

		parsed, err := oj.ParseString(stripFences(resp.Text))
		if err != nil {
			return nil, fmt.Errorf("transform: provider returned invalid JSON: %w", err)
		}
		return parsed, nil
	})
}

var metaAnalyze = Metadata{
	Key: "analyze",
	Description: "Runs a summarization/recommendation prompt over structured " +
		"input and returns the provider's analysis text.",
	ConfigSchema: map[string]any{
		"type":     "object",
		"required": []any{"prompt"},
		"properties": map[string]any{
			"prompt": map[string]any{"type": "string", "minLength": 1},
		},
	},
}

func newAnalyze(deps Deps) graphline.Handler {
	return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaAnalyze, config); err != nil {
			return nil, err
		}
		if deps.Provider == nil {
			return nil, fmt.Errorf("analyze: no provider configured")
		}
		prompt, err := renderPrompt(stringConfig(config, "prompt"), input)
		if err != nil {
			return nil, fmt.Errorf("analyze: %w", err)
		}

		resp, err := deps.Provider.Generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("analyze: provider: %w", err)
		}
		view.RecordTokens(resp.Tokens)

		return map[string]any{
			"summary": resp.Text,
			"source":  input,
		}, nil
	})
}

func hashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:16])
}

// stripFences removes a markdown code fence if the provider wrapped its JSON
// in one.
func stripFences(s string) string {
	t := []byte(s)
	start := bytes.Index(t, []byte("```"))
	if start == -1 {
		return s
	}
	t = t[start+3:]
	if nl := bytes.IndexByte(t, '\n'); nl != -1 && nl < 16 {
		t = t[nl+1:]
	}
	if end := bytes.LastIndex(t, []byte("```")); end != -1 {
		t = t[:end]
	}
	return string(bytes.TrimSpace(t))
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}
