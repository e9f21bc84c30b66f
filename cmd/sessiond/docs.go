package main

// General API documentation for swaggo. Run `swag init -g cmd/sessiond/docs.go -o docs` to regenerate.
//
// @title           sessiond API
// @version         1.0
// @description     HTTP API for an on-device LLM inference session: model lifecycle, streaming generation and metrics.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
