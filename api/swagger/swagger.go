package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "IOTD Promotion API",
        "description": "Submission, review and judgement queues for the Image of the Day",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Staff login"},
        {"name": "Configuration", "description": "Quota, window and threshold settings"},
        {"name": "IOTD", "description": "Stage queues, promotions, hidden and dismissed images"},
        {"name": "Reports", "description": "Promotion history and queue snapshot exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate staff member",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current staff member",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/iotd/config": {
            "get": {
                "tags": ["Configuration"],
                "summary": "Effective IOTD configuration",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Configuration"],
                "summary": "Override or reset IOTD_* keys (admin)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkUpdateConfigurationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/iotd/{stage}/queue": {
            "get": {
                "tags": ["IOTD"],
                "summary": "List a stage queue",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "stage", "in": "path", "required": true, "type": "string", "enum": ["submission", "review", "judgement"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "include_hidden", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Role may not act on this stage", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/iotd/{stage}/promotions": {
            "get": {
                "tags": ["IOTD"],
                "summary": "Own promotion records and quota usage",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "stage", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["IOTD"],
                "summary": "Promote an image",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "stage", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PromotionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "NOT_DESIGNATED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "ALREADY_PROMOTED, QUOTA_EXCEEDED, ENTRY_EXPIRED or NOT_IN_QUEUE", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "INVALID_TIMESTAMP", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/iotd/{stage}/promotions/{id}": {
            "delete": {
                "tags": ["IOTD"],
                "summary": "Retract a promotion",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "stage", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Retracted"},
                    "403": {"description": "RECORD_NOT_OWNED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/iotd/hidden-images": {
            "get": {
                "tags": ["IOTD"],
                "summary": "List hidden images",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["IOTD"],
                "summary": "Hide an image",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VisibilityRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/iotd/hidden-images/{id}": {
            "delete": {
                "tags": ["IOTD"],
                "summary": "Unhide an image",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"204": {"description": "Restored"}}
            }
        },
        "/iotd/dismissed-images": {
            "get": {
                "tags": ["IOTD"],
                "summary": "List dismissed images",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["IOTD"],
                "summary": "Dismiss an image (irreversible, needs confirm=true)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VisibilityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "428": {"description": "CONFIRMATION_REQUIRED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/iotd/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Request an export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReportRequest"}}
                ],
                "responses": {"202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/iotd/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export job status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download an export through its signed token",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "UpdateConfigurationRequest": {
            "type": "object",
            "required": ["key", "value"],
            "properties": {
                "key": {"type": "string", "example": "IOTD_REVIEW_MAX_PER_DAY"},
                "value": {"type": "integer", "minimum": 0}
            }
        },
        "BulkUpdateConfigurationRequest": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/UpdateConfigurationRequest"}},
                "reset": {"type": "array", "items": {"type": "string"}}
            }
        },
        "PromotionRequest": {
            "type": "object",
            "required": ["image_id"],
            "properties": {
                "image_id": {"type": "string"}
            }
        },
        "VisibilityRequest": {
            "type": "object",
            "required": ["image_id"],
            "properties": {
                "image_id": {"type": "string"},
                "confirm": {"type": "boolean"}
            }
        },
        "ReportRequest": {
            "type": "object",
            "required": ["type", "stage", "format"],
            "properties": {
                "type": {"type": "string", "enum": ["promotion_history", "queue_snapshot"]},
                "stage": {"type": "string"},
                "actor_id": {"type": "string"},
                "from": {"type": "string", "format": "date-time"},
                "to": {"type": "string", "format": "date-time"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
