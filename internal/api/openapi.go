package api

import (
	"strings"

	"github.com/mattjoyce/clibridge/internal/invoke"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document with one invoke path per
// operation in the table.
func buildOpenAPIDoc(title string, table *invoke.Table) map[string]any {
	if title == "" {
		title = "clibridge"
	}

	paths := map[string]any{}
	for _, op := range table.Operations() {
		paths["/invoke/"+strings.Join(op.Path, "/")] = map[string]any{
			"post": buildOperation(op),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   title,
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func buildOperation(op *invoke.Operation) map[string]any {
	summary := op.Command.Description
	if summary == "" {
		summary = op.Name
	}

	return map[string]any{
		"operationId": strings.Join(op.Path, "__"),
		"summary":     summary,
		"tags":        []string{op.Path[0]},
		"requestBody": map[string]any{
			"required": false,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"params":  paramsSchema(op.Parameters()),
							"args":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"timeout": map[string]any{"type": "string", "description": "Go duration, e.g. 10s"},
						},
					},
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{"description": "Response envelope"},
			"400": map[string]any{"description": "Invalid parameters"},
			"403": map[string]any{"description": "Insufficient scope"},
			"404": map[string]any{"description": "Unknown operation"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}
}

func paramsSchema(params []invoke.Parameter) map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, p := range params {
		prop := map[string]any{"type": "string"}
		if p.Kind == invoke.FlagOption {
			prop["type"] = "boolean"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
