package main

// General API documentation for swaggo. Generate with:
// swag init -g cmd/llamactxd/docs.go -o internal/httpapi/docs
//
// @title           llamactx API
// @version         1.0
// @description     HTTP API for session-based local LLM inference.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
