// Package docs registers the OpenAPI description served under /swagger/.
// Regenerate with: swag init -g cmd/piigate/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness and storage reachability",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/v1/redact": {
            "post": {
                "consumes": ["text/plain", "text/csv", "application/x-ndjson"],
                "produces": ["text/plain", "text/csv", "application/x-ndjson"],
                "tags": ["redaction"],
                "summary": "Redact a CSV or NDJSON stream",
                "parameters": [
                    {"type": "string", "description": "csv or ndjson", "name": "format", "in": "query"},
                    {"type": "string", "description": "stream identifier", "name": "stream_id", "in": "query"},
                    {"type": "boolean", "description": "first CSV row names the columns", "name": "header", "in": "query"},
                    {"type": "string", "description": "CSV record ID column", "name": "id_column", "in": "query"},
                    {"type": "string", "description": "CSV JSON payload column", "name": "data_column", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "redacted stream", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/admin/reload": {
            "post": {
                "consumes": ["text/plain"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Reload the detection ruleset",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.rulesetInfo"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/admin/ruleset": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Show the active ruleset",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.rulesetInfo"}}
                }
            }
        },
        "/admin/audit": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List audit entries, newest first",
                "parameters": [
                    {"type": "string", "description": "stream filter", "name": "stream_id", "in": "query"},
                    {"type": "string", "description": "record filter", "name": "record_id", "in": "query"},
                    {"type": "string", "description": "ruleset version filter", "name": "ruleset_version", "in": "query"},
                    {"type": "boolean", "description": "PII filter", "name": "is_pii", "in": "query"},
                    {"type": "boolean", "description": "failed record filter", "name": "failed", "in": "query"},
                    {"type": "string", "description": "YYYY-MM-DD", "name": "start_date", "in": "query"},
                    {"type": "string", "description": "YYYY-MM-DD, inclusive", "name": "end_date", "in": "query"},
                    {"type": "integer", "description": "page size (default 25, max 100)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "page offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auditlog.RecordListResult"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/admin/audit/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Get one audit entry",
                "parameters": [
                    {"type": "string", "description": "entry ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auditlog.LogEntry"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/admin/audit/streams/{stream_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Get the audit entries of one stream in input order",
                "parameters": [
                    {"type": "string", "description": "stream ID", "name": "stream_id", "in": "path", "required": true},
                    {"type": "integer", "description": "max entries (default 100, max 1000)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auditlog.StreamResult"}}
                }
            }
        }
    },
    "definitions": {
        "server.errorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "type": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        },
        "server.rulesetInfo": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "version": {"type": "string"},
                "loaded_at": {"type": "string"},
                "development_salt": {"type": "boolean"},
                "strategies": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "category": {"type": "string"},
                            "strategy": {"type": "string"}
                        }
                    }
                },
                "document": {"type": "object"}
            }
        },
        "auditlog.FindingSummary": {
            "type": "object",
            "properties": {
                "path": {"type": "string"},
                "category": {"type": "string"},
                "strategy_applied": {"type": "string"},
                "rule": {"type": "string"}
            }
        },
        "auditlog.LogData": {
            "type": "object",
            "properties": {
                "format": {"type": "string"},
                "findings": {"type": "array", "items": {"$ref": "#/definitions/auditlog.FindingSummary"}},
                "parse_errors": {"type": "array", "items": {"type": "object"}},
                "masking_overflows": {"type": "integer"},
                "masked_record": {"type": "string"}
            }
        },
        "auditlog.LogEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timestamp": {"type": "string"},
                "stream_id": {"type": "string"},
                "record_id": {"type": "string"},
                "seq": {"type": "integer"},
                "ruleset_version": {"type": "string"},
                "is_pii": {"type": "boolean"},
                "failed": {"type": "boolean"},
                "finding_count": {"type": "integer"},
                "data": {"$ref": "#/definitions/auditlog.LogData"}
            }
        },
        "auditlog.RecordListResult": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/auditlog.LogEntry"}},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "auditlog.StreamResult": {
            "type": "object",
            "properties": {
                "stream_id": {"type": "string"},
                "entries": {"type": "array", "items": {"$ref": "#/definitions/auditlog.LogEntry"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "piigate",
	Description:      "Streaming PII detection and redaction for CSV and NDJSON.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
