// Package docs holds the OpenAPI document served by the swagger build.
// Regenerate with: swag init -g cmd/llamactxd/docs.go -o internal/httpapi/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/models": {"get": {"tags": ["models"], "summary": "List models", "produces": ["application/json"],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}}},
        "/status": {"get": {"tags": ["status"], "summary": "Manager status", "produces": ["application/json"],
            "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}}},
        "/switch": {"post": {"tags": ["models"], "summary": "Load a model in the background",
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SwitchRequest"}}],
            "responses": {"202": {"description": "Accepted"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/infer": {"post": {"tags": ["inference"], "summary": "Generate a completion",
            "consumes": ["application/json"], "produces": ["application/x-ndjson"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}],
            "responses": {
                "200": {"description": "NDJSON token lines, then a final line"},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/sessions": {
            "get": {"tags": ["sessions"], "summary": "List sessions", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["sessions"], "summary": "Open a session",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"type": "object"}}],
                "responses": {"201": {"description": "Created"}}}},
        "/sessions/{id}": {
            "get": {"tags": ["sessions"], "summary": "Describe a session",
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "delete": {"tags": ["sessions"], "summary": "Close a session",
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"204": {"description": "No Content"}}}},
        "/sessions/{id}/stats": {"get": {"tags": ["sessions"], "summary": "Session performance counters",
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK"}}}},
        "/sessions/{id}/state": {
            "get": {"tags": ["state"], "summary": "Download raw decode state", "produces": ["application/octet-stream"],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["state"], "summary": "Upload raw decode state", "consumes": ["application/octet-stream"],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"204": {"description": "No Content"}, "422": {"description": "Corrupt state"}}}},
        "/sessions/{id}/snapshot": {"post": {"tags": ["snapshots"], "summary": "Store a compressed snapshot of a session",
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
            "responses": {"201": {"description": "Created"}}}},
        "/sessions/{id}/restore": {"post": {"tags": ["snapshots"], "summary": "Restore a session from a stored snapshot",
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK"}}}},
        "/snapshots": {"get": {"tags": ["snapshots"], "summary": "List stored snapshots", "responses": {"200": {"description": "OK"}}}},
        "/snapshots/{key}": {"delete": {"tags": ["snapshots"], "summary": "Delete a stored snapshot",
            "parameters": [{"in": "path", "name": "key", "type": "string", "required": true}],
            "responses": {"204": {"description": "No Content"},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}}
    },
    "definitions": {
        "types.ErrorResponse": {"type": "object", "properties": {
            "error": {"type": "string"}, "code": {"type": "integer"}, "kind": {"type": "string"}}},
        "types.Model": {"type": "object", "properties": {
            "id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"},
            "backend": {"type": "string"}, "size_bytes": {"type": "integer"},
            "quant": {"type": "string"}, "family": {"type": "string"}}},
        "types.ModelsResponse": {"type": "object", "properties": {
            "models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.SwitchRequest": {"type": "object", "properties": {"model": {"type": "string"}}},
        "types.InferRequest": {"type": "object", "required": ["prompt"], "properties": {
            "model": {"type": "string"}, "session": {"type": "string"}, "prompt": {"type": "string"},
            "stream": {"type": "boolean"}, "max_tokens": {"type": "integer"},
            "temperature": {"type": "number"}, "top_p": {"type": "number"}, "min_p": {"type": "number"},
            "top_k": {"type": "integer"}, "repeat_penalty": {"type": "number"},
            "frequency_penalty": {"type": "number"}, "presence_penalty": {"type": "number"},
            "penalty_last_n": {"type": "integer"}, "seed": {"type": "integer"},
            "stop": {"type": "array", "items": {"type": "string"}},
            "stop_sequences": {"type": "array", "items": {"type": "string"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "llamactx API",
	Description:      "HTTP API for session-based local LLM inference.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
