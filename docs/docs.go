// Package docs registers the OpenAPI document served at /swagger.
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
        "/health": {
            "get": {"summary": "Liveness and metrics", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/publications/search": {
            "get": {
                "summary": "Search the publication catalog",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "q", "in": "query"},
                    {"type": "integer", "name": "year", "in": "query"},
                    {"type": "integer", "name": "year_from", "in": "query"},
                    {"type": "integer", "name": "year_to", "in": "query"},
                    {"type": "string", "name": "journal", "in": "query"},
                    {"type": "string", "name": "author", "in": "query"},
                    {"type": "string", "name": "topic", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid query"}}
            }
        },
        "/api/publications/{id}": {
            "get": {"summary": "Publication with its impact score", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/api/publications/{id}/analysis": {
            "get": {"summary": "Impact analysis", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/api/publications/{id}/fundings": {
            "get": {"summary": "Funding history", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/score": {
            "post": {"summary": "Score raw publication metrics", "consumes": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid body"}}}
        },
        "/api/tokens/estimate": {
            "post": {"summary": "Estimate tokens for a score and funding amount", "consumes": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/session": {
            "post": {"summary": "Issue a session token", "responses": {"201": {"description": "Created"}}}
        },
        "/api/wallet": {
            "get": {"summary": "Session wallet and toasts", "responses": {"200": {"description": "OK"}, "401": {"description": "Missing session"}}}
        },
        "/api/wallet/connect": {
            "post": {"summary": "Connect the session wallet", "responses": {"200": {"description": "OK"}, "409": {"description": "Connect in progress"}}}
        },
        "/api/wallet/disconnect": {
            "post": {"summary": "Disconnect the session wallet", "responses": {"200": {"description": "OK"}}}
        },
        "/api/toasts/{id}": {
            "delete": {"summary": "Dismiss a toast", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/fund": {
            "post": {"summary": "Fund a publication and mint reward tokens", "consumes": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid request"}, "404": {"description": "Unknown publication"}, "409": {"description": "Account inactive"}, "429": {"description": "Rate limited"}}}
        },
        "/api/accounts/{address}": {
            "get": {"summary": "Research account", "parameters": [{"type": "string", "name": "address", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/api/accounts/{address}/status": {
            "post": {"summary": "Activate or deactivate a research account", "parameters": [{"type": "string", "name": "address", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "Invalid authority"}}}
        },
        "/api/leaderboard": {
            "get": {"summary": "Publications ranked by funding", "parameters": [{"type": "integer", "name": "limit", "in": "query"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/ratelimit": {
            "get": {"summary": "Rate limit status for the caller", "responses": {"200": {"description": "OK"}}}
        },
        "/api/payments/checkout": {
            "post": {"summary": "Create a Stripe checkout session", "responses": {"200": {"description": "OK"}, "503": {"description": "Payments not configured"}}}
        },
        "/api/payments/webhook": {
            "post": {"summary": "Stripe webhook", "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid signature"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Research Token API",
	Description:      "Impact scoring and tokenized funding of research publications.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
