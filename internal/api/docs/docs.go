// Package docs registers the swagger spec produced from the handlers
// package's @title/@host/etc annotations (see handlers/base.go). Normally
// generated by `swag init`; hand-maintained here to match.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "ioengine maintainers",
            "url": "https://github.com/arbourd/ioengine"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Engine statistics",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Historical stats snapshots",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/monitor": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Worker watchdog status",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "X-API-Key"
        }
    }
}`

// SwaggerInfo holds exported swagger metadata, matching the shape `swag
// init` emits so ginSwagger.WrapHandler can serve it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "ioengine Admin API",
	Description:      "REST API for observing a running ioengine socket-table host.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
