//go:build swagger

// Package docs holds the swaggo-generated API description. Regenerate with
// `swag init -g cmd/sessiond/docs.go -o docs` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/models": {"get": {"produces": ["application/json"], "tags": ["models"], "summary": "List models",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}}},
        "/status": {"get": {"produces": ["application/json"], "tags": ["session"], "summary": "Session status",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}},
        "/modes": {"get": {"produces": ["application/json"], "tags": ["session"], "summary": "Available acceleration modes",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModesResponse"}}}}},
        "/metrics/generation": {"get": {"produces": ["application/json"], "tags": ["session"], "summary": "Metrics of the last generation",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Metrics"}}, "204": {"description": "No generation yet"}}}},
        "/load": {"post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["session"], "summary": "Load a model",
            "parameters": [{"in": "body", "name": "body", "schema": {"$ref": "#/definitions/types.LoadRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "422": {"description": "Unprocessable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/generate": {"post": {"consumes": ["application/json"], "produces": ["application/x-ndjson"], "tags": ["session"], "summary": "Stream a generation",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.GenerateRequest"}}],
            "responses": {"200": {"description": "NDJSON stream", "schema": {"$ref": "#/definitions/types.StreamEvent"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "503": {"description": "Not ready", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/reset": {"post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["session"], "summary": "Reset the session",
            "parameters": [{"in": "body", "name": "body", "schema": {"$ref": "#/definitions/types.ResetRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/release": {"post": {"produces": ["application/json"], "tags": ["session"], "summary": "Release the model",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}}
    },
    "definitions": {
        "types.Model": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"}, "size_bytes": {"type": "integer"}}},
        "types.ModelsResponse": {"type": "object", "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.ModelConfig": {"type": "object", "properties": {"acceleration": {"type": "string", "enum": ["cpu", "gpu"]}, "temperature": {"type": "number"}, "top_k": {"type": "integer"}, "top_p": {"type": "number"}, "max_tokens": {"type": "integer"}}},
        "types.LoadRequest": {"type": "object", "properties": {"path": {"type": "string"}, "config": {"$ref": "#/definitions/types.ModelConfig"}}},
        "types.GenerateRequest": {"type": "object", "properties": {"prompt": {"type": "string"}, "history": {"type": "array", "items": {"type": "string"}}, "config": {"$ref": "#/definitions/types.ModelConfig"}}},
        "types.ResetRequest": {"type": "object", "properties": {"config": {"$ref": "#/definitions/types.ModelConfig"}}},
        "types.Metrics": {"type": "object", "properties": {"tokens_per_second": {"type": "number"}, "first_token_latency_ms": {"type": "integer"}, "total_inference_time_ms": {"type": "integer"}, "total_tokens_generated": {"type": "integer"}, "last_updated_unix_ms": {"type": "integer"}}},
        "types.StreamEvent": {"type": "object", "properties": {"text": {"type": "string"}, "done": {"type": "boolean"}, "reason": {"type": "string"}, "metrics": {"$ref": "#/definitions/types.Metrics"}, "error": {"type": "string"}}},
        "types.ModesResponse": {"type": "object", "properties": {"modes": {"type": "array", "items": {"type": "string"}}}},
        "types.StatusResponse": {"type": "object", "properties": {"state": {"type": "string"}, "model_path": {"type": "string"}, "acceleration": {"type": "string"}, "has_session": {"type": "boolean"}, "error": {"type": "string"}, "uptime_seconds": {"type": "integer"}, "server_time_unix": {"type": "integer"}, "generations_total": {"type": "integer"}, "session_resets_total": {"type": "integer"}, "last_metrics": {"$ref": "#/definitions/types.Metrics"}}},
        "types.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "sessiond API",
	Description:      "HTTP API for an on-device LLM inference session: model lifecycle, streaming generation and metrics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
